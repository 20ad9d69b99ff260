// Package sandbox assembles the local reference backend the storefront client talks
// to during development and in end to end tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/sandbox/httpserver"
	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
	"github.com/Skotchmaster/storefront/internal/sandbox/search"
	"github.com/Skotchmaster/storefront/internal/sandbox/service"
	"github.com/Skotchmaster/storefront/pkg/config"
	"github.com/Skotchmaster/storefront/pkg/db"
	"github.com/Skotchmaster/storefront/pkg/hash"
	"github.com/Skotchmaster/storefront/pkg/logging"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

type Server struct {
	db     *gorm.DB
	repo   *repo.GormRepo
	events events.Publisher
	echo   *echo.Echo
	log    *slog.Logger

	auth    *service.AuthService
	catalog *service.CatalogService
}

type Option func(*options)

type options struct {
	clock     func() time.Time
	logger    *slog.Logger
	publisher events.Publisher
	hasher    *hash.Hasher
	registry  *prometheus.Registry
}

// WithClock drives token issuance and expiry checks. Tests use it to age tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublisher overrides the Kafka or no-op publisher picked from config.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithHasher(h hash.Hasher) Option {
	return func(o *options) { o.hasher = &h }
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func New(ctx context.Context, cfg config.Sandbox, opts ...Option) (*Server, error) {
	o := options{clock: time.Now, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = &hash.Hasher{}
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector())
	}
	l := o.logger.With("component", "sandbox")

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	r := &repo.GormRepo{DB: gdb}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pub := o.publisher
	switch {
	case pub != nil:
	case len(cfg.KafkaBrokers) > 0:
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers)
		l.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers)
	default:
		pub = events.Nop{}
	}

	catalog := &service.CatalogService{Repo: r}
	if cfg.ESURL != "" {
		es, err := search.New(ctx, search.Config{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			// Filtering falls back to the database.
			l.Warn("elasticsearch unavailable", "error", err)
		} else {
			catalog.Search = es
		}
	}

	issuer := &tokens.Issuer{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Now:           o.clock,
	}
	auth := &service.AuthService{Repo: r, Tokens: issuer, Hasher: *o.hasher, Events: pub, Now: o.clock}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	httpserver.Register(e, &httpserver.Deps{
		Auth:     &httpserver.AuthHTTP{Svc: auth},
		Cart:     &httpserver.CartHTTP{Svc: &service.CartService{Repo: r, Events: pub, Now: o.clock}},
		Wishlist: &httpserver.WishlistHTTP{Svc: &service.WishlistService{Repo: r, Events: pub, Now: o.clock}},
		Catalog:  &httpserver.CatalogHTTP{Svc: catalog},
		Orders:   &httpserver.OrderHTTP{Svc: &service.OrderService{Repo: r}},
		Bearer:   authmw.NewBearerMiddleware(issuer),
		Logger:   o.logger,
		Registry: o.registry,
	})

	return &Server{
		db:      gdb,
		repo:    r,
		events:  pub,
		echo:    e,
		log:     l,
		auth:    auth,
		catalog: catalog,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Close() error {
	return errors.Join(s.events.Close(), db.Close(s.db))
}

// Demo accounts created by Seed. Every password is SeedPassword.
const (
	SeedCustomer = "alice"
	SeedAdmin    = "admin"
	SeedBlocked  = "mallory"
	SeedPassword = "password123"
)

type seedProduct struct {
	name, category, description, price string
	stock                              int
}

var seedCatalog = []seedProduct{
	{"Trail Runner", "running", "Lightweight trail running shoe", "89.99", 25},
	{"City Sneaker", "casual", "Everyday leather sneaker", "64.50", 40},
	{"Court Classic", "tennis", "Low profile court shoe", "72.00", 15},
	{"Hiking Boot", "outdoor", "Waterproof mid cut boot", "129.00", 10},
	{"Wool Socks", "accessories", "Merino crew socks, two pack", "12.00", 100},
}

// Seed fills an empty database with demo users, products and one order. It is a
// no-op once products exist.
func (s *Server) Seed(ctx context.Context) error {
	n, err := s.repo.CountProducts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	users := map[string]*models.User{}
	for _, u := range []struct {
		name, role string
		blocked    bool
	}{
		{SeedCustomer, models.RoleCustomer, false},
		{SeedAdmin, models.RoleAdmin, false},
		{SeedBlocked, models.RoleCustomer, true},
	} {
		created, err := s.auth.Register(ctx, service.RegisterInput{
			Username:  u.name,
			Email:     u.name + "@example.com",
			Password:  SeedPassword,
			FirstName: u.name,
		})
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.name, err)
		}
		fields := map[string]any{"role": u.role}
		if u.blocked {
			fields["status"] = models.StatusBlocked
		}
		if created, err = s.repo.UpdateUser(ctx, created.ID, fields); err != nil {
			return fmt.Errorf("seed user %s: %w", u.name, err)
		}
		users[u.name] = created
	}

	products := make([]models.Product, 0, len(seedCatalog))
	for _, sp := range seedCatalog {
		p := models.Product{
			Name:        sp.name,
			Category:    sp.category,
			Description: sp.description,
			Price:       decimal.RequireFromString(sp.price),
			Stock:       sp.stock,
		}
		if err := s.catalog.Create(ctx, &p); err != nil {
			return fmt.Errorf("seed product %s: %w", sp.name, err)
		}
		products = append(products, p)
	}

	first, second := products[0], products[4]
	order := models.Order{
		UserID:      users[SeedCustomer].ID,
		Status:      "delivered",
		TotalAmount: first.Price.Add(second.Price.Mul(decimal.NewFromInt(2))),
		Items: []models.OrderItem{
			{ProductID: first.ID, Quantity: 1, Price: first.Price},
			{ProductID: second.ID, Quantity: 2, Price: second.Price},
		},
	}
	if err := s.repo.CreateOrder(ctx, &order); err != nil {
		return fmt.Errorf("seed order: %w", err)
	}

	s.log.Info("seeded demo data", "users", len(users), "products", len(products))
	return nil
}
