// Package auth guards echo routes with HS256 bearer access tokens.
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/pkg/tokens"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AccessParser validates an access token.
type AccessParser interface {
	ParseAccess(token string) (*tokens.AccessClaims, error)
}

type BearerMiddleware struct {
	Parser AccessParser
}

func NewBearerMiddleware(p AccessParser) *BearerMiddleware {
	return &BearerMiddleware{Parser: p}
}

type ValidatorFunc func(claims *tokens.AccessClaims) error

func (m *BearerMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *BearerMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(claims *tokens.AccessClaims) error {
		if claims.Role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (m *BearerMiddleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c.Request())
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}

		claims, err := m.Parser.ParseAccess(raw)
		if err != nil {
			detail := "Token is invalid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				detail = "Given token not valid for any token type"
			}
			return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
				"detail": detail,
				"code":   "token_not_valid",
			})
		}

		if validator != nil {
			if validationErr := validator(claims); validationErr != nil {
				return validationErr
			}
		}

		setUserContext(c, claims)
		return next(c)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set(ContextUserID, claims.Subject)
	c.Set(ContextRole, claims.Role)
}

// UserID returns the numeric subject stored by RequireAuth.
func UserID(c echo.Context) (int64, error) {
	s, ok := c.Get(ContextUserID).(string)
	if !ok || s == "" {
		return 0, errors.New("unauthorized")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("unauthorized")
	}
	return id, nil
}
