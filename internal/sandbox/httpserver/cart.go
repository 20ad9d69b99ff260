package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/internal/sandbox/transport"
	"github.com/Skotchmaster/storefront/pkg/logging"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
)

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	view, err := h.Svc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return toHTTP(c, "get_cart", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CartAddRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.Svc.AddToCart(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		return toHTTP(c, "add_to_cart", err)
	}

	l.Info("item added to cart", "product_id", req.ProductID, "quantity", item.Quantity)
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) UpdateLine(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CartUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	item, err := h.Svc.UpdateQuantity(c.Request().Context(), userID, req.CartID, req.Quantity)
	if err != nil {
		return toHTTP(c, "update_cart", err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHTTP) DeleteLine(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CartDeleteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.Svc.DeleteLine(c.Request().Context(), userID, req.CartID); err != nil {
		return toHTTP(c, "delete_cart_line", err)
	}
	return c.JSON(http.StatusOK, transport.Message{Message: "Item removed from cart"})
}
