package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavel/internal/common"
	"github.com/gavelworks/gavel/internal/counter"
)

// MemoryStore is an in-memory Store with the same conditional-update
// semantics as MongoStore. Used in tests.
type MemoryStore struct {
	mu       sync.Mutex
	auctions map[string]*Auction
	counters counter.Store
	now      func() time.Time
}

func NewMemoryStore(counters counter.Store) *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*Auction),
		counters: counters,
		now:      time.Now,
	}
}

// WithClock overrides the store clock. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(ctx context.Context, item Item, author Author) (Auction, error) {
	a := Auction{
		ID:         uuid.NewString(),
		Item:       item,
		Author:     author,
		Bids:       []Bid{},
		HighestBid: 0,
		Sold:       false,
		Created:    s.now().UTC(),
	}

	s.mu.Lock()
	s.auctions[a.ID] = &a
	s.mu.Unlock()

	if err := s.counters.Provision(ctx, a.ID); err != nil {
		s.mu.Lock()
		delete(s.auctions, a.ID)
		s.mu.Unlock()
		return Auction{}, fmt.Errorf("counter provisioning failed, rolled back: %w", common.ErrStoreInconsistency)
	}

	return a, nil
}

func (s *MemoryStore) VerifyOpen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok || a.Sold {
		return fmt.Errorf("auction %q does not exist or has been sold: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *MemoryStore) ApplyBid(_ context.Context, id string, knownAmount, bidAmount int64, bidder Bidder) (bool, Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok || a.HighestBid != knownAmount {
		return false, Bid{}, nil
	}

	bid := Bid{
		UserID:      bidder.UserID,
		Username:    bidder.Username,
		BidAmount:   bidAmount,
		TotalAmount: knownAmount + bidAmount,
		Date:        s.now().UTC(),
	}
	a.HighestBid += bidAmount
	a.Bids = append(a.Bids, bid)
	return true, bid, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return Auction{}, fmt.Errorf("auction %q: %w", id, common.ErrNotFound)
	}

	copied := *a
	copied.Bids = append([]Bid(nil), a.Bids...)
	return copied, nil
}

func (s *MemoryStore) ListOpen(_ context.Context, offset, limit int64) ([]Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []Auction
	for _, a := range s.auctions {
		if !a.Sold {
			copied := *a
			copied.Bids = append([]Bid(nil), a.Bids...)
			open = append(open, copied)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Created.After(open[j].Created) })

	if offset >= int64(len(open)) {
		return nil, nil
	}
	open = open[offset:]
	if limit > 0 && limit < int64(len(open)) {
		open = open[:limit]
	}
	return open, nil
}

// MarkSold closes the auction for bidding. Test helper.
func (s *MemoryStore) MarkSold(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.auctions[id]; ok {
		a.Sold = true
	}
}
