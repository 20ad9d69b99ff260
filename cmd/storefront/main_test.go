package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/storefront/internal/sandbox"
	"github.com/Skotchmaster/storefront/pkg/config"
	"github.com/Skotchmaster/storefront/pkg/hash"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

func newSandbox(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	sb, err := sandbox.New(ctx, config.Sandbox{
		DatabaseURL:      ":memory:",
		JWTSecret:        "test-jwt-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
	},
		sandbox.WithLogger(logging.Discard()),
		sandbox.WithHasher(hash.Hasher{Cost: bcrypt.MinCost}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })
	require.NoError(t, sb.Seed(ctx))

	ts := httptest.NewServer(sb.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRun_CommandSequence(t *testing.T) {
	cfg := config.Client{
		APIURL:          newSandbox(t),
		Timeout:         5 * time.Second,
		RefreshInterval: time.Hour,
		TokenStore:      "sqlite",
		TokenDSN:        filepath.Join(t.TempDir(), "credentials.db"),
		Profile:         "test",
	}

	// Every step is a fresh process sharing only the token store.
	tests := []struct {
		name     string
		cmd      string
		args     []string
		wantErr  error
		contains []string
	}{
		{name: "catalog without login", cmd: "products", contains: []string{"Trail Runner", "89.99", "Wool Socks"}},
		{name: "search", cmd: "products", args: []string{"boot"}, contains: []string{"Hiking Boot"}},
		{name: "anonymous whoami", cmd: "whoami", contains: []string{"not logged in"}},
		{name: "anonymous cart", cmd: "cart", contains: []string{"cart is empty"}},
		{name: "login", cmd: "login", args: []string{sandbox.SeedCustomer, sandbox.SeedPassword}, contains: []string{"->"}},
		{name: "whoami", cmd: "whoami", contains: []string{"alice", "role=customer"}},
		{name: "cart add", cmd: "cart-add", args: []string{"1", "2"}, contains: []string{"Trail Runner", "179.98"}},
		{name: "cart after restart", cmd: "cart", contains: []string{"Trail Runner", "2 items"}},
		{name: "wishlist toggle", cmd: "wish-toggle", args: []string{"2"}, contains: []string{"City Sneaker"}},
		{name: "wishlist", cmd: "wishlist", contains: []string{"City Sneaker"}},
		{name: "orders", cmd: "orders", contains: []string{"delivered", "Wool Socks"}},
		{name: "logout", cmd: "logout"},
		{name: "whoami after logout", cmd: "whoami", contains: []string{"not logged in"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			a, closeFn, err := newApp(context.Background(), cfg, logging.Discard(), &out)
			require.NoError(t, err)
			defer closeFn()

			err = a.run(context.Background(), tt.cmd, tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err, out.String())
			for _, want := range tt.contains {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestRun_BadArguments(t *testing.T) {
	cfg := config.Client{
		APIURL:     newSandbox(t),
		Timeout:    5 * time.Second,
		TokenStore: "memory",
	}
	var out bytes.Buffer
	a, closeFn, err := newApp(context.Background(), cfg, logging.Discard(), &out)
	require.NoError(t, err)
	defer closeFn()

	tests := []struct {
		cmd  string
		args []string
	}{
		{"login", []string{"alice"}},
		{"register", []string{"bob", "bob@example.com"}},
		{"cart-inc", nil},
		{"cart-add", []string{"1", "many"}},
		{"dance", nil},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, a.run(context.Background(), tt.cmd, tt.args), errUsage, tt.cmd)
	}

	err = a.run(context.Background(), "cart-rm", []string{"x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}

func TestRealMain_NoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, realMain(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: storefront")
	assert.Empty(t, stdout.String())
}
