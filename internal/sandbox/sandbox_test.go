package sandbox_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/credentials"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/internal/sandbox"
	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/wishlist"
	"github.com/Skotchmaster/storefront/pkg/config"
	"github.com/Skotchmaster/storefront/pkg/hash"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	url    string
	clock  *clock
	events *events.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	clk := &clock{now: time.Now()}
	rec := events.NewRecorder(256)
	srv, err := sandbox.New(ctx, config.Sandbox{
		DatabaseURL:      ":memory:",
		JWTSecret:        "test-jwt-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
	},
		sandbox.WithClock(clk.Now),
		sandbox.WithHasher(hash.Hasher{Cost: bcrypt.MinCost}),
		sandbox.WithPublisher(rec),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	require.NoError(t, srv.Seed(ctx))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{url: ts.URL, clock: clk, events: rec}
}

type shopper struct {
	api      *apiclient.Client
	creds    credentials.Store
	session  *session.Store
	cart     *cart.Store
	wishlist *wishlist.Store
	notices  *notify.Recorder
	routes   []session.Route
}

func (e *env) shopper(t *testing.T) *shopper {
	t.Helper()

	sh := &shopper{creds: credentials.NewMemoryStore(), notices: &notify.Recorder{}}
	api, err := apiclient.New(e.url, sh.creds)
	require.NoError(t, err)
	sh.api = api

	sh.session = session.New(api, sh.creds,
		session.WithNotifier(sh.notices),
		session.WithNavigator(session.NavigatorFunc(func(_ context.Context, r session.Route) {
			sh.routes = append(sh.routes, r)
		})),
	)
	sh.cart = cart.New(api, sh.session, cart.WithNotifier(sh.notices))
	sh.wishlist = wishlist.New(api, sh.session, wishlist.WithNotifier(sh.notices))
	sh.session.Subscribe(sh.cart.HandleSessionEvent)
	sh.session.Subscribe(sh.wishlist.HandleSessionEvent)
	return sh
}

func lastNotice(t *testing.T, r *notify.Recorder) notify.Notice {
	t.Helper()
	n, ok := r.Last()
	require.True(t, ok, "no notices")
	return n
}

func messages(r *notify.Recorder) []string {
	var out []string
	for _, n := range r.Notices() {
		out = append(out, n.Message)
	}
	return out
}

func productNamed(t *testing.T, api *apiclient.Client, name string) apiclient.Product {
	t.Helper()
	products, err := api.Products(context.Background())
	require.NoError(t, err)
	for _, p := range products {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("product %q not seeded", name)
	return apiclient.Product{}
}

func TestShoppingFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	route, err := sh.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	assert.Equal(t, session.RouteHome, route)
	id, ok := sh.session.Identity()
	require.True(t, ok)
	assert.Equal(t, sandbox.SeedCustomer, id.Username)
	assert.Equal(t, "Welcome back, "+sandbox.SeedCustomer+"!", lastNotice(t, sh.notices).Message)

	shoe := productNamed(t, sh.api, "Trail Runner")

	require.NoError(t, sh.cart.Add(ctx, shoe, 1))
	require.NoError(t, sh.cart.Add(ctx, shoe, 1))
	snap := sh.cart.Snapshot()
	require.Len(t, snap.Lines, 1)
	line := snap.Lines[0]
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, shoe.Price.Mul(decimal.NewFromInt(2)).Equal(snap.Total), "total %s", snap.Total)

	require.NoError(t, sh.cart.Increment(ctx, line.ID))
	require.NoError(t, sh.cart.Decrement(ctx, line.ID))
	require.NoError(t, sh.cart.Decrement(ctx, line.ID))
	// At quantity 1 a decrement is a local no-op.
	require.NoError(t, sh.cart.Decrement(ctx, line.ID))
	assert.Equal(t, 1, sh.cart.Snapshot().Count)

	server, err := sh.api.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, server.Items, 1)
	assert.Equal(t, 1, server.Items[0].Quantity)

	added, err := sh.wishlist.Toggle(ctx, shoe)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, sh.wishlist.IsMember(shoe.ID))

	added, err = sh.wishlist.Toggle(ctx, shoe)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Zero(t, sh.wishlist.Count())

	orders, err := sh.api.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 2)

	require.NoError(t, sh.cart.Remove(ctx, line.ID))
	assert.Empty(t, sh.cart.Snapshot().Lines)

	sh.session.Logout(ctx)
	assert.False(t, sh.session.Authenticated())
	assert.Equal(t, session.RouteLogin, sh.routes[len(sh.routes)-1])
	c, err := sh.creds.Load(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestLoginFetchesCartAndWishlist(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	first := e.shopper(t)
	_, err := first.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	socks := productNamed(t, first.api, "Wool Socks")
	require.NoError(t, first.cart.Add(ctx, socks, 3))
	require.NoError(t, first.wishlist.Add(ctx, socks))

	second := e.shopper(t)
	_, err = second.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)

	snap := second.cart.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 3, snap.Count)
	assert.True(t, second.wishlist.IsMember(socks.ID))

	// Adding again from the second device merges on the server.
	require.NoError(t, second.cart.Add(ctx, socks, 1))
	assert.Equal(t, 4, second.cart.Snapshot().Count)
}

func TestUnsafeRequestWithoutCSRFTokenIsRejected(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Post(e.url+"/urbanfoot/cart_view/", "application/json", strings.NewReader(`{"product_id":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	_, err := sh.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	before, err := sh.creds.Load(ctx)
	require.NoError(t, err)

	e.clock.Advance(20 * time.Minute)

	require.NoError(t, sh.cart.Fetch(ctx))
	assert.True(t, sh.session.Authenticated())

	after, err := sh.creds.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// The rotated-out refresh token is dead.
	stale, err := apiclient.New(e.url, credentials.NewMemoryStore())
	require.NoError(t, err)
	_, err = stale.Do(ctx, apiclient.Request{
		Method:  http.MethodPost,
		Path:    "/accounts/token/refresh/",
		Body:    map[string]string{"refresh": before.RefreshToken},
		NoRetry: true,
	})
	assert.Equal(t, apiclient.KindUnauthorized, apiclient.KindOf(err))
}

func TestBlockedAccountCannotLogIn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	_, err := sh.session.Login(ctx, sandbox.SeedBlocked, sandbox.SeedPassword)
	require.ErrorIs(t, err, session.ErrAccountBlocked)
	assert.False(t, sh.session.Authenticated())
	assert.Equal(t, notify.Error, lastNotice(t, sh.notices).Level)

	c, err := sh.creds.Load(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestWrongPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	_, err := sh.session.Login(ctx, sandbox.SeedCustomer, "nope")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	assert.Equal(t, "Invalid username or password.", lastNotice(t, sh.notices).Message)
}

func TestAdminBlockEndsSessionOnNextRefresh(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	customer := e.shopper(t)
	_, err := customer.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	id, _ := customer.session.Identity()

	admin := e.shopper(t)
	route, err := admin.session.Login(ctx, sandbox.SeedAdmin, sandbox.SeedPassword)
	require.NoError(t, err)
	assert.Equal(t, session.RouteAdminDashboard, route)

	// Only admins may block.
	_, err = customer.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/adminside/block-user/" + strconv.FormatInt(id.ID, 10) + "/",
		Body:   map[string]string{"action": "block"},
	})
	assert.Equal(t, apiclient.KindForbidden, apiclient.KindOf(err))

	_, err = admin.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/adminside/block-user/" + strconv.FormatInt(id.ID, 10) + "/",
		Body:   map[string]string{"action": "block"},
	})
	require.NoError(t, err)

	e.clock.Advance(20 * time.Minute)

	err = customer.cart.Fetch(ctx)
	require.Error(t, err)
	assert.Equal(t, apiclient.KindUnauthorized, apiclient.KindOf(err))
	assert.False(t, customer.session.Authenticated())
	assert.Equal(t, session.RouteLogin, customer.routes[len(customer.routes)-1])
	assert.Contains(t, messages(customer.notices), "Your session has expired. Please log in again.")

	_, err = customer.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	assert.ErrorIs(t, err, session.ErrAccountBlocked)
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	route, err := sh.session.Register(ctx, apiclient.RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, session.RouteLogin, route)

	_, err = sh.session.Register(ctx, apiclient.RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "secret123",
	})
	require.ErrorIs(t, err, session.ErrInvalidRegistration)
	assert.Contains(t, lastNotice(t, sh.notices).Message, "already exists")

	_, err = sh.session.Login(ctx, "bob", "secret123")
	require.NoError(t, err)
}

func TestRestoreFromStoredTokens(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	first := e.shopper(t)
	_, err := first.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	stored, err := first.creds.Load(ctx)
	require.NoError(t, err)

	creds := credentials.NewMemoryStore()
	require.NoError(t, creds.Save(ctx, stored))
	api, err := apiclient.New(e.url, creds)
	require.NoError(t, err)
	sess := session.New(api, creds, session.WithRefreshInterval(time.Hour))
	sess.Start(ctx)
	t.Cleanup(sess.Close)

	select {
	case <-sess.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("restore did not finish")
	}
	id, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, sandbox.SeedCustomer, id.Username)
}

func TestFilterProducts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	lo := decimal.RequireFromString("60")
	hi := decimal.RequireFromString("100")
	products, err := sh.api.FilterProducts(ctx, apiclient.ProductFilter{MinPrice: &lo, MaxPrice: &hi})
	require.NoError(t, err)

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Trail Runner", "City Sneaker", "Court Classic"}, names)

	_, err = sh.api.FilterProducts(ctx, apiclient.ProductFilter{MinPrice: &hi, MaxPrice: &lo})
	assert.Equal(t, apiclient.KindValidation, apiclient.KindOf(err))
}

func TestEventsArePublished(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sh := e.shopper(t)

	_, err := sh.session.Login(ctx, sandbox.SeedCustomer, sandbox.SeedPassword)
	require.NoError(t, err)
	require.NoError(t, sh.cart.Add(ctx, productNamed(t, sh.api, "City Sneaker"), 1))

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[events.TopicCart] {
		select {
		case p := <-e.events.Events():
			seen[p.Topic] = true
		case <-deadline:
			t.Fatalf("no cart event, saw %v", seen)
		}
	}
	assert.True(t, seen[events.TopicUser])
}
