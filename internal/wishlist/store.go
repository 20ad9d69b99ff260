// Package wishlist mirrors the signed-in user's server-side wishlist.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/notify"
	"github.com/Skotchmaster/storefront/internal/sequence"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

var ErrLoginRequired = errors.New("login required")

type API interface {
	Wishlist(ctx context.Context) ([]apiclient.WishlistEntry, error)
	AddToWishlist(ctx context.Context, productID int64) (apiclient.WishlistAddResult, error)
	DeleteFromWishlist(ctx context.Context, productID int64) error
}

type Session interface {
	Authenticated() bool
}

type Store struct {
	api      API
	session  Session
	notifier notify.Notifier
	log      *slog.Logger

	mu      sync.Mutex
	entries []apiclient.WishlistEntry
	seq     sequence.Guard
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

func (s *Store) HandleSessionEvent(ctx context.Context, e session.Event) {
	switch e {
	case session.EventLogin:
		if err := s.Fetch(ctx); err != nil {
			s.log.Warn("wishlist_fetch_on_login_failed", "error", err)
		}
	case session.EventLogout:
		s.Clear()
	}
}

func (s *Store) Snapshot() []apiclient.WishlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apiclient.WishlistEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// IsMember answers from local state only.
func (s *Store) IsMember(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(productID) >= 0
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.seq.Reset()
	s.mu.Unlock()
}

func (s *Store) Fetch(ctx context.Context) error {
	if !s.session.Authenticated() {
		return ErrLoginRequired
	}

	s.mu.Lock()
	t := s.seq.Ticket()
	s.mu.Unlock()

	entries, err := s.api.Wishlist(ctx)
	if err != nil {
		s.log.Warn("wishlist_fetch_failed", "error", err)
		s.notice(ctx, notify.Error, "Failed to load wishlist.")
		return fmt.Errorf("fetch wishlist: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seq.ResetAt(t) {
		return nil
	}

	next := make([]apiclient.WishlistEntry, 0, len(entries))
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		pid := e.Product.ID
		if seen[pid] {
			continue
		}
		seen[pid] = true
		if s.seq.Newer(pid, t) {
			if i := s.indexOf(pid); i >= 0 {
				next = append(next, s.entries[i])
			}
			continue
		}
		next = append(next, e)
	}
	for _, local := range s.entries {
		if !seen[local.Product.ID] && s.seq.Newer(local.Product.ID, t) {
			next = append(next, local)
		}
	}
	s.entries = next
	return nil
}

func (s *Store) Add(ctx context.Context, p apiclient.Product) error {
	if !s.session.Authenticated() {
		s.notice(ctx, notify.Error, "Please login to use the wishlist")
		return ErrLoginRequired
	}

	s.mu.Lock()
	t := s.seq.Ticket()
	s.mu.Unlock()

	res, err := s.api.AddToWishlist(ctx, p.ID)
	if err != nil {
		s.log.Warn("wishlist_add_failed", "product_id", p.ID, "error", err)
		s.notice(ctx, notify.Error, "Failed to add to wishlist")
		return fmt.Errorf("add to wishlist: %w", err)
	}
	if res.AlreadyPresent() {
		s.notice(ctx, notify.Info, apiclient.AlreadyInWishlist)
		return nil
	}

	entry := apiclient.WishlistEntry{Product: p}
	if res.Entry != nil {
		entry = *res.Entry
		if entry.Product.ID == 0 {
			entry.Product = p
		}
	}

	s.mu.Lock()
	if s.seq.Fresh(p.ID, t) {
		s.seq.Mark(p.ID, t)
		if s.indexOf(p.ID) < 0 {
			s.entries = append(s.entries, entry)
		}
	}
	s.mu.Unlock()

	s.notice(ctx, notify.Success, "Added to wishlist")
	return nil
}

func (s *Store) Remove(ctx context.Context, productID int64) error {
	if !s.session.Authenticated() {
		s.notice(ctx, notify.Error, "Please login to use the wishlist")
		return ErrLoginRequired
	}

	s.mu.Lock()
	t := s.seq.Ticket()
	s.mu.Unlock()

	if err := s.api.DeleteFromWishlist(ctx, productID); err != nil {
		s.log.Warn("wishlist_remove_failed", "product_id", productID, "error", err)
		s.notice(ctx, notify.Error, "Failed to remove from wishlist")
		return fmt.Errorf("remove from wishlist: %w", err)
	}

	s.mu.Lock()
	if s.seq.Fresh(productID, t) {
		s.seq.Mark(productID, t)
		if i := s.indexOf(productID); i >= 0 {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		}
	}
	s.mu.Unlock()

	s.notice(ctx, notify.Info, "Removed from wishlist")
	return nil
}

// Toggle removes p when it is in the local wishlist and adds it otherwise. The branch
// is chosen from local state at call time without asking the server, so a wishlist
// changed elsewhere can make it pick the wrong branch until the next Fetch.
func (s *Store) Toggle(ctx context.Context, p apiclient.Product) (added bool, err error) {
	if s.IsMember(p.ID) {
		return false, s.Remove(ctx, p.ID)
	}
	return true, s.Add(ctx, p)
}

// indexOf is called with s.mu held.
func (s *Store) indexOf(productID int64) int {
	for i, e := range s.entries {
		if e.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) notice(ctx context.Context, lvl notify.Level, msg string) {
	s.notifier.Notify(ctx, notify.Notice{Level: lvl, Message: msg})
}
