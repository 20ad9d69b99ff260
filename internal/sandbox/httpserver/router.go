package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
	"github.com/Skotchmaster/storefront/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/storefront/pkg/middleware/logging"
	"github.com/Skotchmaster/storefront/pkg/middleware/metrics"
)

type Deps struct {
	Auth     *AuthHTTP
	Cart     *CartHTTP
	Wishlist *WishlistHTTP
	Catalog  *CatalogHTTP
	Orders   *OrderHTTP

	Bearer *authmw.BearerMiddleware
	Logger *slog.Logger

	// Registry backs /metrics. Nil disables the endpoint and request metrics.
	Registry *prometheus.Registry
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = NewValidator()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), middleware.Secure())
	e.Use(loggingmw.RequestLogger(d.Logger, "/metrics", "/health/live", "/health/ready"))
	if d.Registry != nil {
		e.Use(metrics.NewHTTP(d.Registry, "sandbox").Middleware)
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
	e.Use(csrf.Middleware(csrf.Config{
		SkipPaths: []string{"/accounts/login", "/accounts/register", "/accounts/token/refresh"},
	}))

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	accounts := e.Group("/accounts")
	accounts.POST("/login", d.Auth.Login)
	accounts.POST("/register", d.Auth.Register)
	accounts.POST("/token/refresh", d.Auth.Refresh)

	private := accounts.Group("", d.Bearer.RequireAuth)
	private.GET("/user_profile", d.Auth.Profile)
	private.PUT("/user_profile", d.Auth.UpdateProfile)
	private.POST("/change-password", d.Auth.ChangePassword)

	shop := e.Group("/urbanfoot")
	shop.GET("/productview", d.Catalog.List)
	shop.GET("/product_detail/:id", d.Catalog.Get)
	shop.GET("/product_filter", d.Catalog.Filter)

	user := shop.Group("", d.Bearer.RequireAuth)
	user.GET("/cart_view", d.Cart.GetCart)
	user.POST("/cart_view", d.Cart.AddToCart)
	user.PATCH("/cart_view", d.Cart.UpdateLine)
	user.DELETE("/cart_view", d.Cart.DeleteLine)

	user.GET("/wishlist_view", d.Wishlist.List)
	user.POST("/wishlist_view", d.Wishlist.Add)
	user.DELETE("/wishlist_view", d.Wishlist.Remove)

	user.GET("/orders", d.Orders.List)

	admin := e.Group("/adminside", d.Bearer.RequireAdmin)
	admin.POST("/block-user/:id", d.Auth.BlockUser)
}
