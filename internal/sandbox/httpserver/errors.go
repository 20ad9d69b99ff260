package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/internal/sandbox/transport"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

// toHTTP maps service errors onto the response shapes the storefront expects.
func toHTTP(c echo.Context, op string, err error) error {
	l := logging.FromContext(c.Request().Context())

	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, fe.Fields)
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusBadRequest, transport.Detail{Detail: "Invalid username or password."})
	case errors.Is(err, service.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, transport.Detail{Detail: "Token is invalid or expired", Code: "token_not_valid"})
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, transport.Detail{Detail: "Not found."})
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, transport.Detail{Detail: err.Error()})
	default:
		l.Error(op+"_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, transport.Detail{Detail: "internal server error"})
	}
}
