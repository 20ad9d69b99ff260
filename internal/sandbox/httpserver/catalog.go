package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/internal/sandbox/transport"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func (h *CatalogHTTP) List(c echo.Context) error {
	products, err := h.Svc.List(c.Request().Context())
	if err != nil {
		return toHTTP(c, "list_products", err)
	}
	return c.JSON(http.StatusOK, products)
}

func (h *CatalogHTTP) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, transport.Detail{Detail: "Not found."})
	}

	p, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(c, "get_product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) Filter(c echo.Context) error {
	f := repo.ProductFilter{
		Query:    c.QueryParam("q"),
		Category: c.QueryParam("category"),
	}
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_price", &f.MinPrice}, {"max_price", &f.MaxPrice}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, map[string][]string{p.name: {"Enter a number."}})
		}
		*p.dst = &d
	}

	products, err := h.Svc.Filter(c.Request().Context(), f)
	if err != nil {
		return toHTTP(c, "filter_products", err)
	}
	return c.JSON(http.StatusOK, products)
}

type OrderHTTP struct {
	Svc *service.OrderService
}

func (h *OrderHTTP) List(c echo.Context) error {
	userID, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	orders, err := h.Svc.List(c.Request().Context(), userID)
	if err != nil {
		return toHTTP(c, "list_orders", err)
	}
	return c.JSON(http.StatusOK, orders)
}
