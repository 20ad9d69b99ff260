// Package session owns the signed-in identity: login, registration, logout, restoring
// a persisted session on startup and the periodic silent token refresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/credentials"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const DefaultRefreshInterval = 50 * time.Minute

type Store struct {
	api      API
	creds    credentials.Store
	notifier notify.Notifier
	nav      Navigator
	log      *slog.Logger
	interval time.Duration

	mu        sync.RWMutex
	state     State
	identity  Identity
	listeners []Listener

	loading   atomic.Bool
	ready     chan struct{}
	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type Option func(*Store)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithNavigator(n Navigator) Option {
	return func(s *Store) { s.nav = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New builds a Store and installs ForceLogout as the API client's auth failure hook.
func New(api API, creds credentials.Store, opts ...Option) *Store {
	s := &Store{
		api:      api,
		creds:    creds,
		notifier: notify.Discard,
		nav:      NavigatorFunc(func(context.Context, Route) {}),
		log:      logging.Discard(),
		interval: DefaultRefreshInterval,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	api.OnAuthFailure(s.ForceLogout)
	return s
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Authenticated() bool {
	return s.State() == Authenticated
}

func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.state == Authenticated
}

// Loading reports whether the background restore started by Start is still running.
func (s *Store) Loading() bool {
	return s.loading.Load()
}

// Ready is closed once the restore started by Start has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Start restores the persisted session in the background and starts the silent
// refresh loop. It returns immediately. Calling it more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()

		s.loading.Store(true)
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			defer close(s.ready)
			defer s.loading.Store(false)
			s.Restore(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.refreshLoop(ctx)
		}()
	})
}

// Close stops the refresh loop and waits for background work to exit.
func (s *Store) Close() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Restore turns a persisted access token into an authenticated session. Without a
// token, or when the profile fetch fails for any reason, the session ends up
// anonymous and the tokens are cleared. Tokens survive only when ctx itself is
// cancelled, since nothing was learned about them.
func (s *Store) Restore(ctx context.Context) {
	creds, err := s.creds.Load(ctx)
	if err != nil {
		s.log.Warn("session_restore_load_failed", "error", err)
		s.becomeAnonymous(ctx)
		return
	}
	if creds.AccessToken == "" {
		s.becomeAnonymous(ctx)
		return
	}

	prev := s.setAuthenticating()
	user, err := s.api.Profile(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("session_restore_cancelled", "error", err)
			s.becomeAnonymous(ctx)
			return
		}
		s.clearCredentials(ctx)
		s.log.Info("session_restore_failed", "kind", apiclient.KindOf(err).String(), "error", err)
		s.becomeAnonymous(ctx)
		return
	}
	if user.Blocked() {
		s.clearCredentials(ctx)
		s.log.Info("session_restore_blocked", "user_id", user.ID)
		s.becomeAnonymous(ctx)
		return
	}

	s.becomeAuthenticated(ctx, identityFrom(user), prev != Authenticated)
	s.log.Info("session_restored", "user_id", user.ID)
}

// Login returns the route the caller should land on.
func (s *Store) Login(ctx context.Context, username, password string) (Route, error) {
	if username == "" || password == "" {
		s.notice(ctx, notify.Error, "Please fill both username and password.")
		return "", ErrMissingCredentials
	}

	prev := s.setAuthenticating()
	res, err := s.api.Login(ctx, username, password)
	if err != nil {
		s.restoreState(prev)
		switch apiclient.KindOf(err) {
		case apiclient.KindValidation, apiclient.KindUnauthorized:
			s.notice(ctx, notify.Error, "Invalid username or password.")
			return "", fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		default:
			s.log.Warn("login_failed", "username", username, "error", err)
			s.notice(ctx, notify.Error, "Login failed. Try again later.")
			return "", fmt.Errorf("%w: %w", ErrLoginFailed, err)
		}
	}

	// Checked before anything is persisted.
	if res.User.Blocked() {
		s.restoreState(prev)
		s.log.Info("login_blocked", "user_id", res.User.ID)
		s.notice(ctx, notify.Error, "Your account has been blocked by the admin.")
		return "", ErrAccountBlocked
	}
	if res.Access == "" {
		s.restoreState(prev)
		s.notice(ctx, notify.Error, "Login failed. Try again later.")
		return "", fmt.Errorf("%w: no access token in response", ErrLoginFailed)
	}

	err = s.creds.Save(ctx, credentials.Credentials{
		AccessToken:  res.Access,
		RefreshToken: res.Refresh,
		UserID:       strconv.FormatInt(res.User.ID, 10),
	})
	if err != nil {
		s.restoreState(prev)
		s.log.Error("credentials_save_failed", "error", err)
		s.notice(ctx, notify.Error, "Login failed. Try again later.")
		return "", fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	id := identityFrom(res.User)
	// A login over an existing session still resets the dependent stores.
	s.becomeAuthenticated(ctx, id, true)
	s.log.Info("login_succeeded", "user_id", id.ID, "role", id.Role)
	s.notice(ctx, notify.Success, fmt.Sprintf("Welcome back, %s!", id.DisplayName))

	route := RouteHome
	if id.IsAdmin() {
		route = RouteAdminDashboard
	}
	s.nav.Navigate(ctx, route)
	return route, nil
}

// Register creates an account. The session stays anonymous.
func (s *Store) Register(ctx context.Context, r apiclient.RegisterRequest) (Route, error) {
	if _, err := s.api.Register(ctx, r); err != nil {
		if apiclient.KindOf(err) == apiclient.KindValidation {
			s.notice(ctx, notify.Warning, "Invalid details or user already exists!")
			return "", fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
		}
		s.log.Warn("register_failed", "username", r.Username, "error", err)
		s.notice(ctx, notify.Error, "Registration failed! Try again later.")
		return "", fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	s.notice(ctx, notify.Success, "Registration successful! Please log in.")
	s.nav.Navigate(ctx, RouteLogin)
	return RouteLogin, nil
}

func (s *Store) Logout(ctx context.Context) Route {
	s.clearCredentials(ctx)
	s.becomeAnonymous(ctx)
	s.log.Info("logout")
	s.notice(ctx, notify.Info, "Logged out successfully.")
	s.nav.Navigate(ctx, RouteLogin)
	return RouteLogin
}

// ForceLogout ends the session after an unrecoverable refresh failure and sends the
// user to the login route.
func (s *Store) ForceLogout(ctx context.Context) {
	s.clearCredentials(ctx)
	if s.State() != Anonymous {
		s.becomeAnonymous(ctx)
		s.log.Warn("session_expired")
		s.notice(ctx, notify.Warning, "Your session has expired. Please log in again.")
	}
	s.nav.Navigate(ctx, RouteLogin)
}

func (s *Store) UpdateProfile(ctx context.Context, p apiclient.ProfileUpdate) (Identity, error) {
	if !s.Authenticated() {
		return Identity{}, ErrNotAuthenticated
	}
	user, err := s.api.UpdateProfile(ctx, p)
	if err != nil {
		s.notice(ctx, notify.Error, "Failed to update profile.")
		return Identity{}, fmt.Errorf("%w: %w", ErrProfileUpdateFailed, err)
	}

	id := identityFrom(user)
	s.mu.Lock()
	if s.state == Authenticated {
		s.identity = id
	}
	s.mu.Unlock()

	s.notice(ctx, notify.Success, "Profile updated successfully!")
	return id, nil
}

func (s *Store) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	if err := s.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		if apiclient.KindOf(err) == apiclient.KindValidation {
			s.notice(ctx, notify.Warning, apiErrorMessage(err, "Password change rejected."))
		} else {
			s.notice(ctx, notify.Error, "Failed to change password.")
		}
		return fmt.Errorf("%w: %w", ErrPasswordChangeFailed, err)
	}
	s.notice(ctx, notify.Success, "Password changed successfully!")
	return nil
}

func (s *Store) refreshLoop(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshOnce(ctx)
		}
	}
}

// refreshOnce is one tick of the silent refresh loop.
func (s *Store) refreshOnce(ctx context.Context) {
	if s.State() != Authenticated {
		return
	}
	creds, err := s.creds.Load(ctx)
	if err != nil {
		s.log.Warn("silent_refresh_load_failed", "error", err)
		return
	}
	if creds.RefreshToken == "" {
		return
	}

	if err := s.api.RefreshSession(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("silent_refresh_failed", "error", err)
		s.ForceLogout(ctx)
		return
	}
	s.log.Debug("silent_refresh_ok")
}

func (s *Store) setAuthenticating() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if prev != Authenticated {
		s.state = Authenticating
	}
	return prev
}

func (s *Store) restoreState(prev State) {
	s.mu.Lock()
	if s.state == Authenticating {
		s.state = prev
	}
	s.mu.Unlock()
}

// becomeAuthenticated installs id. Listeners hear EventLogin when announce is set.
func (s *Store) becomeAuthenticated(ctx context.Context, id Identity, announce bool) {
	s.mu.Lock()
	s.state = Authenticated
	s.identity = id
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if announce {
		s.emit(ctx, listeners, EventLogin)
	}
}

func (s *Store) becomeAnonymous(ctx context.Context) {
	s.mu.Lock()
	was := s.state
	s.state = Anonymous
	s.identity = Identity{}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if was == Authenticated {
		s.emit(ctx, listeners, EventLogout)
	}
}

func (s *Store) emit(ctx context.Context, listeners []Listener, e Event) {
	for _, l := range listeners {
		l(ctx, e)
	}
}

func (s *Store) clearCredentials(ctx context.Context) {
	if err := s.creds.Clear(ctx); err != nil {
		s.log.Error("credentials_clear_failed", "error", err)
	}
}

func (s *Store) notice(ctx context.Context, lvl notify.Level, msg string) {
	s.notifier.Notify(ctx, notify.Notice{Level: lvl, Message: msg})
}

func apiErrorMessage(err error, fallback string) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
