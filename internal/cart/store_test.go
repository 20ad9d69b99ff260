package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/internal/session"
)

type fakeSession bool

func (f fakeSession) Authenticated() bool { return bool(f) }

// fakeAPI merges additively, the way the backend does.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int64
	lines    []apiclient.CartLine
	catalog  map[int64]apiclient.Product
	calls    int
	failNext error
	// hold, when set, blocks UpdateCartLine until the returned channel is closed.
	hold func(quantity int) <-chan struct{}
}

func newFakeAPI(products ...apiclient.Product) *fakeAPI {
	f := &fakeAPI{catalog: map[int64]apiclient.Product{}, nextID: 100}
	for _, p := range products {
		f.catalog[p.ID] = p
	}
	return f
}

func (f *fakeAPI) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeAPI) Cart(context.Context) (apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.takeErr(); err != nil {
		return apiclient.Cart{}, err
	}
	items := make([]apiclient.CartLine, len(f.lines))
	copy(items, f.lines)
	return apiclient.Cart{Items: items}, nil
}

func (f *fakeAPI) AddToCart(_ context.Context, productID int64, quantity int) (apiclient.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.takeErr(); err != nil {
		return apiclient.CartLine{}, err
	}
	for i, l := range f.lines {
		if l.Product.ID == productID {
			f.lines[i].Quantity += quantity
			return f.lines[i], nil
		}
	}
	f.nextID++
	line := apiclient.CartLine{ID: f.nextID, Product: f.catalog[productID], Quantity: quantity}
	f.lines = append(f.lines, line)
	return line, nil
}

func (f *fakeAPI) UpdateCartLine(_ context.Context, lineID int64, quantity int) (apiclient.CartLine, error) {
	if f.hold != nil {
		<-f.hold(quantity)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.takeErr(); err != nil {
		return apiclient.CartLine{}, err
	}
	for i, l := range f.lines {
		if l.ID == lineID {
			f.lines[i].Quantity = quantity
			return f.lines[i], nil
		}
	}
	return apiclient.CartLine{}, &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404}
}

func (f *fakeAPI) DeleteCartLine(_ context.Context, lineID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.takeErr(); err != nil {
		return err
	}
	for i, l := range f.lines {
		if l.ID == lineID {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			return nil
		}
	}
	return &apiclient.Error{Kind: apiclient.KindNotFound, Status: 404}
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var (
	sneaker = apiclient.Product{ID: 1, Name: "Sneaker", Price: decimal.RequireFromString("59.99")}
	boot    = apiclient.Product{ID: 2, Name: "Boot", Price: decimal.RequireFromString("120.50")}
)

func assertTotal(t *testing.T, snap Snapshot) {
	t.Helper()
	want := decimal.Zero
	for _, l := range snap.Lines {
		want = want.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, want.Equal(snap.Total), "total %s, want %s", snap.Total, want)
}

func TestAdd_SameProductTwiceMergesIntoOneLine(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker)
	s := New(api, fakeSession(true))

	require.NoError(t, s.Add(ctx, sneaker, 1))
	require.NoError(t, s.Add(ctx, sneaker, 1))

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
	assert.Equal(t, 2, snap.Count)
	assertTotal(t, snap)
}

func TestTotalInvariantAcrossOperations(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker, boot)
	s := New(api, fakeSession(true))

	require.NoError(t, s.Add(ctx, sneaker, 1))
	assertTotal(t, s.Snapshot())
	require.NoError(t, s.Add(ctx, boot, 3))
	assertTotal(t, s.Snapshot())

	lines := s.Snapshot().Lines
	require.NoError(t, s.Increment(ctx, lines[0].ID))
	assertTotal(t, s.Snapshot())
	require.NoError(t, s.Decrement(ctx, lines[1].ID))
	assertTotal(t, s.Snapshot())
	require.NoError(t, s.Remove(ctx, lines[0].ID))

	snap := s.Snapshot()
	assertTotal(t, snap)
	require.Len(t, snap.Lines, 1)
	assert.True(t, decimal.RequireFromString("241").Equal(snap.Total))
}

func TestDecrement_FloorMakesNoCall(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker)
	s := New(api, fakeSession(true))
	require.NoError(t, s.Add(ctx, sneaker, 1))
	before := api.callCount()

	line := s.Snapshot().Lines[0]
	require.NoError(t, s.Decrement(ctx, line.ID))

	assert.Equal(t, before, api.callCount())
	assert.Equal(t, 1, s.Snapshot().Lines[0].Quantity)
}

func TestMutatorsRequireLogin(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker)
	rec := &notify.Recorder{}
	s := New(api, fakeSession(false), WithNotifier(rec))

	assert.ErrorIs(t, s.Add(ctx, sneaker, 1), ErrLoginRequired)
	assert.ErrorIs(t, s.Increment(ctx, 1), ErrLoginRequired)
	assert.ErrorIs(t, s.Remove(ctx, 1), ErrLoginRequired)
	assert.Zero(t, api.callCount())

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "Please login to add items to cart", last.Message)
}

func TestUnknownLine(t *testing.T) {
	api := newFakeAPI()
	s := New(api, fakeSession(true))
	issued := s.seq.Issued()

	assert.ErrorIs(t, s.Increment(context.Background(), 42), ErrLineNotFound)
	assert.ErrorIs(t, s.Decrement(context.Background(), 42), ErrLineNotFound)
	assert.ErrorIs(t, s.Remove(context.Background(), 42), ErrLineNotFound)

	assert.Zero(t, api.callCount())
	assert.Equal(t, issued, s.seq.Issued())
}

func TestFailureKeepsLastKnownState(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker)
	rec := &notify.Recorder{}
	s := New(api, fakeSession(true), WithNotifier(rec))
	require.NoError(t, s.Add(ctx, sneaker, 2))
	before := s.Snapshot()

	api.failNext = &apiclient.Error{Kind: apiclient.KindServer, Status: 500}
	err := s.Remove(ctx, before.Lines[0].ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apiclient.ErrServer)

	assert.Equal(t, before, s.Snapshot())
	last, _ := rec.Last()
	assert.Equal(t, notify.Notice{Level: notify.Error, Message: "Failed to remove item from cart"}, last)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker)
	s := New(api, fakeSession(true))
	require.NoError(t, s.Add(ctx, sneaker, 2))
	lineID := s.Snapshot().Lines[0].ID

	// The first update (to 3) is held until the second (to 1 via a decrement) lands.
	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	close(done)
	api.hold = func(quantity int) <-chan struct{} {
		if quantity == 3 {
			close(entered)
			return release
		}
		return done
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Increment(ctx, lineID))
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("increment never reached the server")
	}
	require.NoError(t, s.Decrement(ctx, lineID))
	assert.Equal(t, 1, s.Snapshot().Lines[0].Quantity)

	close(release)
	wg.Wait()

	assert.Equal(t, 1, s.Snapshot().Lines[0].Quantity)
	assertTotal(t, s.Snapshot())
}

func TestSessionEvents(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sneaker, boot)
	api.lines = []apiclient.CartLine{
		{ID: 7, Product: sneaker, Quantity: 2},
		{ID: 8, Product: boot, Quantity: 1},
	}
	s := New(api, fakeSession(true))

	s.HandleSessionEvent(ctx, session.EventLogin)
	snap := s.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.True(t, decimal.RequireFromString("240.48").Equal(snap.Total))

	s.HandleSessionEvent(ctx, session.EventLogout)
	snap = s.Snapshot()
	assert.Empty(t, snap.Lines)
	assert.True(t, snap.Total.IsZero())
}

func TestFetchFailureNotifies(t *testing.T) {
	api := newFakeAPI()
	api.failNext = errors.New("offline")
	rec := &notify.Recorder{}
	s := New(api, fakeSession(true), WithNotifier(rec))

	require.Error(t, s.Fetch(context.Background()))
	last, _ := rec.Last()
	assert.Equal(t, "Failed to load cart.", last.Message)
}
