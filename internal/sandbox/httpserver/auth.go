package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/internal/sandbox/transport"
	"github.com/Skotchmaster/storefront/pkg/logging"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, pair, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return toHTTP(c, "login", err)
	}

	l.Info("login succeeded", "user_id", user.ID, "status_flag", user.Status)
	return c.JSON(http.StatusOK, transport.LoginResponse{Access: pair.Access, Refresh: pair.Refresh, User: user})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.Svc.Register(ctx, service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return toHTTP(c, "register", err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	var req transport.RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.Svc.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return toHTTP(c, "refresh", err)
	}
	return c.JSON(http.StatusOK, transport.RefreshResponse{Access: pair.Access, Refresh: pair.Refresh})
}

func (h *AuthHTTP) Profile(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := h.Svc.Profile(c.Request().Context(), userID)
	if err != nil {
		return toHTTP(c, "profile", err)
	}
	return c.JSON(http.StatusOK, transport.ProfileResponse{User: user})
}

func (h *AuthHTTP) UpdateProfile(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.ProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.Svc.UpdateProfile(c.Request().Context(), userID, service.ProfileInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return toHTTP(c, "update_profile", err)
	}
	return c.JSON(http.StatusOK, transport.ProfileResponse{User: user})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.Svc.ChangePassword(c.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		return toHTTP(c, "change_password", err)
	}
	return c.JSON(http.StatusOK, transport.Message{Message: "Password updated successfully"})
}

// BlockUser is the admin switch behind the back office "block" button.
func (h *AuthHTTP) BlockUser(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, transport.Detail{Detail: "invalid user id"})
	}

	var req transport.BlockRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.Svc.SetBlocked(c.Request().Context(), id, req.Action == "block")
	if err != nil {
		return toHTTP(c, "block_user", err)
	}
	return c.JSON(http.StatusOK, user)
}
