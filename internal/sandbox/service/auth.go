package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
	pkg_hash "github.com/Skotchmaster/storefront/pkg/hash"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

type AuthService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Issuer
	Hasher pkg_hash.Hasher
	Events events.Publisher
	Now    func() time.Time
}

type TokenPair struct {
	Access  string
	Refresh string
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", in.Username)

	pwHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	user := models.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		PasswordHash: pwHash,
		Role:         models.RoleCustomer,
		Status:       models.StatusActive,
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_error", "reason", "user already exists")
			return nil, fieldError("username", "A user with that username already exists.")
		}
		return nil, err
	}

	s.publish(ctx, events.TopicUser, user.ID, "user_registered", nil)
	l.Info("user registered", "user_id", user.ID)
	return &user, nil
}

// Login checks the password and issues a token pair. Blocked users still get tokens;
// the storefront client is the one that refuses them.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	user, err := s.Repo.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login failed", "reason", "unknown user")
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if !s.Hasher.Check(user.PasswordHash, password) {
		l.Warn("login failed", "reason", "wrong password")
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		l.Error("login failed", "error", err)
		return nil, TokenPair{}, err
	}

	s.publish(ctx, events.TopicUser, user.ID, "user_logged_in", nil)
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, fmt.Errorf("%w: unknown user", ErrInvalidToken)
		}
		return TokenPair{}, err
	}

	access, _, err := s.Tokens.IssueAccess(claims.Subject, user.Role)
	if err != nil {
		return TokenPair{}, err
	}
	next, err := s.Tokens.IssueRefresh(claims.Subject)
	if err != nil {
		return TokenPair{}, err
	}

	err = s.Repo.RotateRefresh(ctx, claims.ID, s.now().Unix(), &models.RefreshToken{
		JTI:       next.JTI,
		UserID:    user.ID,
		ExpiresAt: next.ExpiresAt.Unix(),
	})
	if err != nil {
		if errors.Is(err, repo.ErrRefreshUnusable) || errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return TokenPair{}, err
	}

	return TokenPair{Access: access, Refresh: next.Token}, nil
}

func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.Repo.UserByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

type ProfileInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*models.User, error) {
	fields := map[string]any{}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.FirstName != nil {
		fields["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		fields["last_name"] = *in.LastName
	}
	if in.Phone != nil {
		fields["phone"] = *in.Phone
	}

	u, err := s.Repo.UpdateUser(ctx, userID, fields)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !s.Hasher.Check(u.PasswordHash, oldPassword) {
		return fieldError("old_password", "Wrong password.")
	}

	pwHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.Repo.UpdateUser(ctx, userID, map[string]any{"password_hash": pwHash}); err != nil {
		return err
	}
	return s.Repo.RevokeUserRefresh(ctx, userID)
}

// SetBlocked blocks or unblocks a user. Blocking revokes every refresh token.
func (s *AuthService) SetBlocked(ctx context.Context, userID int64, blocked bool) (*models.User, error) {
	status := models.StatusActive
	if blocked {
		status = models.StatusBlocked
	}
	u, err := s.Repo.UpdateUser(ctx, userID, map[string]any{"status": status})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if blocked {
		if err := s.Repo.RevokeUserRefresh(ctx, userID); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, events.TopicUser, userID, "user_"+status, nil)
	return u, nil
}

func (s *AuthService) issue(ctx context.Context, u *models.User) (TokenPair, error) {
	sub := strconv.FormatInt(u.ID, 10)
	access, _, err := s.Tokens.IssueAccess(sub, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	ref, err := s.Tokens.IssueRefresh(sub)
	if err != nil {
		return TokenPair{}, err
	}
	err = s.Repo.AddRefresh(ctx, &models.RefreshToken{
		JTI:       ref.JTI,
		UserID:    u.ID,
		ExpiresAt: ref.ExpiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: ref.Token}, nil
}

func (s *AuthService) publish(ctx context.Context, topic string, userID int64, typ string, data map[string]any) {
	publish(ctx, s.Events, s.now(), topic, userID, typ, data)
}

func publish(ctx context.Context, p events.Publisher, now time.Time, topic string, userID int64, typ string, data map[string]any) {
	if p == nil {
		return
	}
	ev := events.Event{Type: typ, UserID: userID, Data: data, Timestamp: now.UTC()}
	if err := p.Publish(ctx, topic, strconv.FormatInt(userID, 10), ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "topic", topic, "type", typ, "error", err)
	}
}
