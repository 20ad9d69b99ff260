package session

import (
	"context"
	"errors"

	"github.com/Skotchmaster/storefront/internal/apiclient"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Route is a landing view the front end should move to.
type Route string

const (
	RouteHome           Route = "/"
	RouteAdminDashboard Route = "/admin/dashboard"
	RouteLogin          Route = "/login"
)

type Navigator interface {
	Navigate(ctx context.Context, r Route)
}

type NavigatorFunc func(ctx context.Context, r Route)

func (f NavigatorFunc) Navigate(ctx context.Context, r Route) {
	f(ctx, r)
}

type Event int

const (
	EventLogin Event = iota + 1
	EventLogout
)

func (e Event) String() string {
	if e == EventLogin {
		return "login"
	}
	return "logout"
}

// Listener is called after every login or logout transition, outside the store lock.
type Listener func(ctx context.Context, e Event)

type Identity struct {
	ID          int64
	Username    string
	DisplayName string
	Email       string
	Role        string
	Blocked     bool
}

func (i Identity) IsAdmin() bool {
	return i.Role == apiclient.RoleAdmin
}

func identityFrom(u apiclient.User) Identity {
	display := u.FirstName
	if display == "" {
		display = u.Username
	}
	return Identity{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: display,
		Email:       u.Email,
		Role:        u.Role,
		Blocked:     u.Blocked(),
	}
}

var (
	ErrMissingCredentials   = errors.New("username and password are required")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAccountBlocked       = errors.New("account blocked")
	ErrLoginFailed          = errors.New("login failed")
	ErrInvalidRegistration  = errors.New("invalid details or user already exists")
	ErrRegistrationFailed   = errors.New("registration failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrProfileUpdateFailed  = errors.New("profile update failed")
	ErrPasswordChangeFailed = errors.New("password change failed")
)

// API is the part of the REST client the session store needs.
type API interface {
	Login(ctx context.Context, username, password string) (apiclient.LoginResponse, error)
	Register(ctx context.Context, r apiclient.RegisterRequest) (apiclient.User, error)
	Profile(ctx context.Context) (apiclient.User, error)
	UpdateProfile(ctx context.Context, p apiclient.ProfileUpdate) (apiclient.User, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	RefreshSession(ctx context.Context) error
	OnAuthFailure(fn func(context.Context))
}
