package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/storefront/internal/sandbox/events"
	"github.com/Skotchmaster/storefront/internal/sandbox/models"
	"github.com/Skotchmaster/storefront/internal/sandbox/repo"
	"github.com/Skotchmaster/storefront/pkg/db"
	"github.com/Skotchmaster/storefront/pkg/hash"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

type testEnv struct {
	repo    *repo.GormRepo
	now     time.Time
	events  *events.Recorder
	auth    *AuthService
	cart    *CartService
	wish    *WishlistService
	catalog *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	gdb, err := db.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	r := &repo.GormRepo{DB: gdb}
	require.NoError(t, r.Migrate(ctx))

	env := &testEnv{repo: r, now: time.Now(), events: events.NewRecorder(64)}
	clock := func() time.Time { return env.now }

	env.auth = &AuthService{
		Repo: r,
		Tokens: &tokens.Issuer{
			AccessSecret:  []byte("test-jwt-secret"),
			RefreshSecret: []byte("test-refresh-secret"),
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			Now:           clock,
		},
		Hasher: hash.Hasher{Cost: bcrypt.MinCost},
		Events: env.events,
		Now:    clock,
	}
	env.cart = &CartService{Repo: r, Events: env.events, Now: clock}
	env.wish = &WishlistService{Repo: r, Events: env.events, Now: clock}
	env.catalog = &CatalogService{Repo: r}
	return env
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{Username: name, Email: name + "@example.com", Password: "Secret123"})
	require.NoError(t, err)
	return u
}

func (e *testEnv) product(t *testing.T, name, price string) models.Product {
	t.Helper()
	p := models.Product{Name: name, Category: "shoes", Price: decimal.RequireFromString(price)}
	require.NoError(t, e.catalog.Create(context.Background(), &p))
	return p
}

func TestAuthService_Register_SuccessAndConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.user(t, "alice")
	assert.Equal(t, models.RoleCustomer, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)
	assert.NotEqual(t, "Secret123", u.PasswordHash)

	_, err := env.auth.Register(ctx, RegisterInput{Username: "alice", Password: "Other123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Fields, "username")
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "ok", username: "alice", password: "Secret123"},
		{name: "wrong password", username: "alice", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown user", username: "bob", password: "Secret123", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, pair, err := env.auth.Login(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", u.Username)

			claims, err := env.auth.Tokens.ParseAccess(pair.Access)
			require.NoError(t, err)
			assert.Equal(t, models.RoleCustomer, claims.Role)
		})
	}
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice")

	_, first, err := env.auth.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	second, err := env.auth.Refresh(ctx, first.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh, second.Refresh)

	_, err = env.auth.Refresh(ctx, first.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = env.auth.Refresh(ctx, second.Refresh)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice")

	_, pair, err := env.auth.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	env.now = env.now.Add(25 * time.Hour)
	_, err = env.auth.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ChangePassword_RevokesRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "alice")

	_, pair, err := env.auth.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	err = env.auth.ChangePassword(ctx, u.ID, "wrong", "NewSecret1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.auth.ChangePassword(ctx, u.ID, "Secret123", "NewSecret1"))

	_, err = env.auth.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = env.auth.Login(ctx, "alice", "NewSecret1")
	assert.NoError(t, err)
}

func TestAuthService_SetBlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "alice")

	_, pair, err := env.auth.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	blocked, err := env.auth.SetBlocked(ctx, u.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, blocked.Status)

	_, err = env.auth.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Blocked users still authenticate; the client refuses them.
	got, _, err := env.auth.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, got.Status)

	_, err = env.auth.SetBlocked(ctx, 999, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthService_UpdateProfile_OnlyTouchesGivenFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "alice")

	first := "Alice"
	got, err := env.auth.UpdateProfile(ctx, u.ID, ProfileInput{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestCartService_AddMergesAndTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "alice")
	shoe := env.product(t, "Trail Runner", "89.99")
	socks := env.product(t, "Wool Socks", "12.00")

	first, err := env.cart.AddToCart(ctx, u.ID, shoe.ID, 1)
	require.NoError(t, err)
	second, err := env.cart.AddToCart(ctx, u.ID, shoe.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Quantity)
	assert.Equal(t, "Trail Runner", second.Product.Name)

	_, err = env.cart.AddToCart(ctx, u.ID, socks.ID, 1)
	require.NoError(t, err)

	view, err := env.cart.GetCart(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.True(t, decimal.RequireFromString("281.97").Equal(view.TotalCartPrice), view.TotalCartPrice.String())
}

func TestCartService_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	shoe := env.product(t, "Trail Runner", "89.99")

	_, err := env.cart.AddToCart(ctx, alice.ID, 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.cart.AddToCart(ctx, alice.ID, shoe.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)

	line, err := env.cart.AddToCart(ctx, alice.ID, shoe.ID, 1)
	require.NoError(t, err)

	// Another user cannot touch the line.
	_, err = env.cart.UpdateQuantity(ctx, bob.ID, line.ID, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.cart.DeleteLine(ctx, bob.ID, line.ID), ErrNotFound)

	_, err = env.cart.UpdateQuantity(ctx, alice.ID, line.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := env.cart.UpdateQuantity(ctx, alice.ID, line.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)

	require.NoError(t, env.cart.DeleteLine(ctx, alice.ID, line.ID))
	view, err := env.cart.GetCart(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestWishlistService_AddTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "alice")
	shoe := env.product(t, "Trail Runner", "89.99")

	item, err := env.wish.Add(ctx, u.ID, shoe.ID)
	require.NoError(t, err)
	assert.Equal(t, shoe.ID, item.Product.ID)

	_, err = env.wish.Add(ctx, u.ID, shoe.ID)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, env.wish.Remove(ctx, u.ID, shoe.ID))
	assert.ErrorIs(t, env.wish.Remove(ctx, u.ID, shoe.ID), ErrNotFound)
}

type failingSearch struct{ indexed int }

func (f *failingSearch) Search(context.Context, repo.ProductFilter) ([]int64, error) {
	return nil, errors.New("cluster unavailable")
}

func (f *failingSearch) IndexProduct(context.Context, models.Product) error {
	f.indexed++
	return nil
}

type fixedSearch struct{ ids []int64 }

func (f fixedSearch) Search(context.Context, repo.ProductFilter) ([]int64, error) {
	return f.ids, nil
}

func (fixedSearch) IndexProduct(context.Context, models.Product) error { return nil }

func TestCatalogService_Filter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	search := &failingSearch{}
	env.catalog.Search = search
	shoe := env.product(t, "Trail Runner", "89.99")
	socks := env.product(t, "Wool Socks", "12.00")
	assert.Equal(t, 2, search.indexed)

	lo, hi := decimal.NewFromInt(50), decimal.NewFromInt(10)
	_, err := env.catalog.Filter(ctx, repo.ProductFilter{MinPrice: &lo, MaxPrice: &hi})
	assert.ErrorIs(t, err, ErrValidation)

	// Search failures fall back to the database.
	got, err := env.catalog.Filter(ctx, repo.ProductFilter{Query: "wool"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, socks.ID, got[0].ID)

	// Search hits keep the index's ranking.
	env.catalog.Search = fixedSearch{ids: []int64{socks.ID, 999, shoe.ID}}
	got, err = env.catalog.Filter(ctx, repo.ProductFilter{Query: "anything"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{socks.ID, shoe.ID}, []int64{got[0].ID, got[1].ID})
}
