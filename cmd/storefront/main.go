package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/credentials"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/wishlist"
	"github.com/Skotchmaster/storefront/pkg/config"
	"github.com/Skotchmaster/storefront/pkg/db"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const usage = `usage: storefront <command> [args]

commands:
  login <username> <password>
  logout
  whoami
  register <username> <email> <password>
  products [query]
  cart
  cart-add <product-id> [quantity]
  cart-inc <line-id>
  cart-dec <line-id>
  cart-rm <line-id>
  wishlist
  wish-toggle <product-id>
  orders
`

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain returns the process exit code once every resource has been released.
func realMain(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger := logging.NewText(stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	app, closeFn, err := newApp(ctx, cfg, logger, stdout)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer closeFn()

	err = app.run(ctx, args[0], args[1:])
	app.reportMetrics()
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	case err != nil:
		logger.Debug("command failed", "command", args[0], "error", err)
		return 1
	}
	return 0
}

type app struct {
	out      io.Writer
	log      *slog.Logger
	reg      *prometheus.Registry
	api      *apiclient.Client
	session  *session.Store
	cart     *cart.Store
	wishlist *wishlist.Store
}

func newApp(ctx context.Context, cfg config.Client, logger *slog.Logger, out io.Writer) (*app, func(), error) {
	creds, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	api, err := apiclient.New(cfg.APIURL, creds,
		apiclient.WithTimeout(cfg.Timeout),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(apiclient.NewMetrics(reg)),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	notifier := &notify.WriterNotifier{W: out}
	sess := session.New(api, creds,
		session.WithNotifier(notifier),
		session.WithLogger(logger),
		session.WithRefreshInterval(cfg.RefreshInterval),
		session.WithNavigator(session.NavigatorFunc(func(_ context.Context, r session.Route) {
			logger.Debug("navigate", "route", string(r))
		})),
	)
	a := &app{
		out:      out,
		log:      logger,
		reg:      reg,
		api:      api,
		session:  sess,
		cart:     cart.New(api, sess, cart.WithNotifier(notifier), cart.WithLogger(logger)),
		wishlist: wishlist.New(api, sess, wishlist.WithNotifier(notifier), wishlist.WithLogger(logger)),
	}
	sess.Subscribe(a.cart.HandleSessionEvent)
	sess.Subscribe(a.wishlist.HandleSessionEvent)

	return a, func() {
		sess.Close()
		closeStore()
	}, nil
}

func openStore(ctx context.Context, cfg config.Client) (credentials.Store, func(), error) {
	switch cfg.TokenStore {
	case "memory":
		return credentials.NewMemoryStore(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return credentials.NewRedisStore(rdb, cfg.Profile), func() { _ = rdb.Close() }, nil
	default:
		gdb, err := db.Open(ctx, cfg.TokenDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := credentials.NewGormStore(ctx, gdb, cfg.Profile)
		if err != nil {
			_ = db.Close(gdb)
			return nil, nil, err
		}
		return store, func() { _ = db.Close(gdb) }, nil
	}
}

// reportMetrics logs the client counters at debug level.
func (a *app) reportMetrics() {
	if !a.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	families, err := a.reg.Gather()
	if err != nil {
		a.log.Debug("metrics gather failed", "error", err)
		return
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		a.log.Debug("metric", "name", mf.GetName(), "value", total)
	}
}
