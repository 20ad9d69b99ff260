package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/internal/sandbox/transport"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
)

type WishlistHTTP struct {
	Svc *service.WishlistService
}

func (h *WishlistHTTP) List(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	items, err := h.Svc.List(c.Request().Context(), userID)
	if err != nil {
		return toHTTP(c, "get_wishlist", err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *WishlistHTTP) Add(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.WishlistRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	item, err := h.Svc.Add(c.Request().Context(), userID, req.ProductID)
	if errors.Is(err, service.ErrAlreadyExists) {
		return c.JSON(http.StatusOK, transport.WishlistAddResponse{Message: "Already in wishlist"})
	}
	if err != nil {
		return toHTTP(c, "add_to_wishlist", err)
	}
	return c.JSON(http.StatusCreated, transport.WishlistAddResponse{Entry: item})
}

func (h *WishlistHTTP) Remove(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.WishlistRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.Svc.Remove(c.Request().Context(), userID, req.ProductID); err != nil {
		return toHTTP(c, "remove_from_wishlist", err)
	}
	return c.JSON(http.StatusOK, transport.Message{Message: "Removed from wishlist"})
}
