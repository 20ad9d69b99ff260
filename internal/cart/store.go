// Package cart keeps a local mirror of the signed-in user's server-side cart.
//
// The server is authoritative: after each confirmed mutation the line it returns
// replaces the local line, and the total is always recomputed from the local lines.
// Responses that arrive after a newer response for the same product are dropped.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/internal/sequence"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrLineNotFound  = errors.New("cart line not found")
)

type API interface {
	Cart(ctx context.Context) (apiclient.Cart, error)
	AddToCart(ctx context.Context, productID int64, quantity int) (apiclient.CartLine, error)
	UpdateCartLine(ctx context.Context, lineID int64, quantity int) (apiclient.CartLine, error)
	DeleteCartLine(ctx context.Context, lineID int64) error
}

// Session reports whether a user is signed in.
type Session interface {
	Authenticated() bool
}

type Snapshot struct {
	Lines []apiclient.CartLine
	Total decimal.Decimal
	// Count is the number of units across all lines.
	Count int
}

type Store struct {
	api      API
	session  Session
	notifier notify.Notifier
	log      *slog.Logger

	mu    sync.Mutex
	lines []apiclient.CartLine
	total decimal.Decimal
	seq   sequence.Guard
}

type Option func(*Store)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(api API, sess Session, opts ...Option) *Store {
	s := &Store{
		api:      api,
		session:  sess,
		notifier: notify.Discard,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleSessionEvent fetches the cart on login and clears it on logout.
// Subscribe it with session.Store.Subscribe.
func (s *Store) HandleSessionEvent(ctx context.Context, e session.Event) {
	switch e {
	case session.EventLogin:
		if err := s.Fetch(ctx); err != nil {
			s.log.Warn("cart_fetch_on_login_failed", "error", err)
		}
	case session.EventLogout:
		s.Clear()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]apiclient.CartLine, len(s.lines))
	copy(lines, s.lines)
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return Snapshot{Lines: lines, Total: s.total, Count: count}
}

// Clear drops every line and invalidates in-flight responses.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.seq.Reset()
	s.recompute()
}

// Fetch replaces the local cart with the server's snapshot. Lines changed by a
// response issued after the fetch are kept as they are locally.
func (s *Store) Fetch(ctx context.Context) error {
	if !s.session.Authenticated() {
		return ErrLoginRequired
	}

	s.mu.Lock()
	t := s.seq.Ticket()
	s.mu.Unlock()

	c, err := s.api.Cart(ctx)
	if err != nil {
		s.log.Warn("cart_fetch_failed", "error", err)
		s.notice(ctx, notify.Error, "Failed to load cart.")
		return fmt.Errorf("fetch cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seq.ResetAt(t) {
		s.log.Debug("cart_response_discarded", "op", "fetch", "ticket", t)
		return nil
	}

	lines := make([]apiclient.CartLine, 0, len(c.Items))
	seen := make(map[int64]bool, len(c.Items))
	for _, l := range c.Items {
		pid := l.Product.ID
		seen[pid] = true
		if s.seq.Newer(pid, t) {
			if local, ok := s.lineByProduct(pid); ok {
				lines = append(lines, local)
			}
			continue
		}
		lines = append(lines, l)
	}
	for _, local := range s.lines {
		if !seen[local.Product.ID] && s.seq.Newer(local.Product.ID, t) {
			lines = append(lines, local)
		}
	}
	s.lines = lines
	s.recompute()
	return nil
}

// Add asks the server to add quantity units of p. The server merges into an existing
// line for the same product; the returned line replaces the local one.
func (s *Store) Add(ctx context.Context, p apiclient.Product, quantity int) error {
	if !s.session.Authenticated() {
		s.notice(ctx, notify.Error, "Please login to add items to cart")
		return ErrLoginRequired
	}
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	t := s.seq.Ticket()
	s.mu.Unlock()

	line, err := s.api.AddToCart(ctx, p.ID, quantity)
	if err != nil {
		s.log.Warn("cart_add_failed", "product_id", p.ID, "error", err)
		s.notice(ctx, notify.Error, "Failed to add product to cart")
		return fmt.Errorf("add to cart: %w", err)
	}
	if line.Product.ID == 0 {
		line.Product = p
	}

	s.mu.Lock()
	s.applyLine(line, t)
	s.mu.Unlock()

	s.notice(ctx, notify.Success, "Item added to cart!")
	return nil
}

func (s *Store) Increment(ctx context.Context, lineID int64) error {
	return s.step(ctx, lineID, +1)
}

// Decrement lowers the quantity by one. At quantity 1 it does nothing; use Remove.
func (s *Store) Decrement(ctx context.Context, lineID int64) error {
	return s.step(ctx, lineID, -1)
}

func (s *Store) step(ctx context.Context, lineID int64, delta int) error {
	if !s.session.Authenticated() {
		s.notice(ctx, notify.Error, "Please login to add items to cart")
		return ErrLoginRequired
	}

	s.mu.Lock()
	current, ok := s.lineByID(lineID)
	if !ok {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	if current.Quantity+delta < 1 {
		s.mu.Unlock()
		return nil
	}
	t := s.seq.Ticket()
	s.mu.Unlock()

	line, err := s.api.UpdateCartLine(ctx, lineID, current.Quantity+delta)
	if err != nil {
		s.log.Warn("cart_update_failed", "line_id", lineID, "error", err)
		s.notice(ctx, notify.Error, "Failed to update cart")
		return fmt.Errorf("update cart line: %w", err)
	}
	if line.Product.ID == 0 {
		line.Product = current.Product
	}
	if line.ID == 0 {
		line.ID = lineID
	}

	s.mu.Lock()
	s.applyLine(line, t)
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(ctx context.Context, lineID int64) error {
	if !s.session.Authenticated() {
		s.notice(ctx, notify.Error, "Please login to add items to cart")
		return ErrLoginRequired
	}

	s.mu.Lock()
	current, ok := s.lineByID(lineID)
	if !ok {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	t := s.seq.Ticket()
	s.mu.Unlock()

	if err := s.api.DeleteCartLine(ctx, lineID); err != nil {
		s.log.Warn("cart_remove_failed", "line_id", lineID, "error", err)
		s.notice(ctx, notify.Error, "Failed to remove item from cart")
		return fmt.Errorf("remove cart line: %w", err)
	}

	s.mu.Lock()
	pid := current.Product.ID
	if s.seq.Fresh(pid, t) {
		s.seq.Mark(pid, t)
		s.lines = deleteLine(s.lines, func(l apiclient.CartLine) bool { return l.ID == lineID })
		s.recompute()
	}
	s.mu.Unlock()

	s.notice(ctx, notify.Success, "Item removed from cart")
	return nil
}

// applyLine merges a server line into the local list. Callers hold s.mu.
func (s *Store) applyLine(line apiclient.CartLine, t uint64) {
	pid := line.Product.ID
	if !s.seq.Fresh(pid, t) {
		s.log.Debug("cart_response_discarded", "product_id", pid, "ticket", t)
		return
	}
	s.seq.Mark(pid, t)

	// One line per product: the first match takes the server line, later matches go.
	merged := make([]apiclient.CartLine, 0, len(s.lines)+1)
	placed := false
	for _, l := range s.lines {
		if l.ID != line.ID && l.Product.ID != pid {
			merged = append(merged, l)
			continue
		}
		if !placed {
			merged = append(merged, line)
			placed = true
		}
	}
	if !placed {
		merged = append(merged, line)
	}
	s.lines = merged
	s.recompute()
}

func (s *Store) recompute() {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	s.total = total
}

func (s *Store) lineByID(id int64) (apiclient.CartLine, bool) {
	for _, l := range s.lines {
		if l.ID == id {
			return l, true
		}
	}
	return apiclient.CartLine{}, false
}

func (s *Store) lineByProduct(pid int64) (apiclient.CartLine, bool) {
	for _, l := range s.lines {
		if l.Product.ID == pid {
			return l, true
		}
	}
	return apiclient.CartLine{}, false
}

func (s *Store) notice(ctx context.Context, lvl notify.Level, msg string) {
	s.notifier.Notify(ctx, notify.Notice{Level: lvl, Message: msg})
}

func deleteLine(lines []apiclient.CartLine, drop func(apiclient.CartLine) bool) []apiclient.CartLine {
	out := lines[:0]
	for _, l := range lines {
		if !drop(l) {
			out = append(out, l)
		}
	}
	return out
}
