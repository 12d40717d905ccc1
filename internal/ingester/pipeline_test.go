package ingester

// Full-pipeline tests: client envelopes travel bigpipe → broker (counter
// commit) → smallpipe → ingester (document commit) → backpipe, over the
// in-process exchange and in-memory stores.

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavel/internal/auction"
	"github.com/gavelworks/gavel/internal/broker"
	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/counter"
	"github.com/gavelworks/gavel/internal/envelope"
	"github.com/gavelworks/gavel/internal/event"
	"github.com/gavelworks/gavel/internal/identity"
	"github.com/gavelworks/gavel/internal/logging"
)

type pipeline struct {
	exchange *bus.LocalExchange
	counters *counter.MemoryStore
	store    *auction.MemoryStore
	tokens   *identity.Service
	client   *envelope.Codec
	producer *bus.LocalEndpoint
	events   *bus.LocalEndpoint
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	exchange := bus.NewLocalExchange()
	counters := counter.NewMemoryStore()
	store := auction.NewMemoryStore(counters)
	tokens := identity.NewService(identity.NewMemoryAccounts(), []byte("token-secret"), []byte("password-secret"), 24*time.Hour)
	client := envelope.NewCodec([]byte("web-secret"))
	attested := envelope.NewCodec([]byte("broker-secret"))

	b := broker.New(exchange.Endpoint("bigpipe"), counters, client, attested, tokens, "smallpipe", logging.NewNop())
	ing := New(exchange.Endpoint("smallpipe"), store, attested, tokens, "backpipe", logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = b.Run(ctx) }()
	go func() { defer wg.Done(); _ = ing.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		exchange.Close()
		wg.Wait()
	})

	return &pipeline{
		exchange: exchange,
		counters: counters,
		store:    store,
		tokens:   tokens,
		client:   client,
		producer: exchange.Endpoint(),
		events:   exchange.Endpoint("backpipe"),
	}
}

func (p *pipeline) submit(t *testing.T, env envelope.Envelope) {
	t.Helper()
	signed, err := p.client.Sign(env)
	require.NoError(t, err)
	payload, err := envelope.EncodeSubmission(signed)
	require.NoError(t, err)
	require.NoError(t, p.producer.Publish(context.Background(), "bigpipe", payload))
}

func (p *pipeline) nextEvent(t *testing.T, within time.Duration) (event.CommittedBid, bool) {
	t.Helper()
	select {
	case msg := <-p.events.Messages():
		e, err := event.Decode(msg.Data)
		require.NoError(t, err)
		return e, true
	case <-time.After(within):
		return event.CommittedBid{}, false
	}
}

// 100 concurrent bids at knownAmount 0: exactly one is committed end to end.
func TestConcurrentBidsSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := startPipeline(t)

	a, err := p.store.Create(ctx, auction.Item{Title: "painting"}, auction.Author{UserID: "u0", Username: "alice"})
	require.NoError(t, err)
	tok, err := p.tokens.Register(ctx, "bob", "pw", "")
	require.NoError(t, err)

	signed, err := p.client.Sign(envelope.Envelope{
		AuctionID: a.ID, KnownAmount: 0, BidAmount: 1000, UserToken: tok.UserToken,
	})
	require.NoError(t, err)
	payload, err := envelope.EncodeSubmission(signed)
	require.NoError(t, err)

	// Publish from goroutines, assert on the test goroutine.
	errs := make(chan error, 100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.producer.Publish(context.Background(), "bigpipe", payload)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e, ok := p.nextEvent(t, 5*time.Second)
	require.True(t, ok, "expected exactly one committed event")
	assert.Equal(t, int64(1000), e.Bid.TotalAmount)

	_, ok = p.nextEvent(t, 300*time.Millisecond)
	assert.False(t, ok, "no second bid may commit")

	got, err := p.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.HighestBid)
	assert.Len(t, got.Bids, 1)

	v, _ := p.counters.Value(a.ID)
	assert.Equal(t, int64(1000), v, "counter and document must agree once settled")
}

// 100 sequential bids whose knownAmount tracks the running total all commit;
// interleaved stale submissions are dropped and do not affect highestBid.
func TestSequentialTrackedBids(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := startPipeline(t)

	a, err := p.store.Create(ctx, auction.Item{Title: "sculpture"}, auction.Author{UserID: "u0", Username: "alice"})
	require.NoError(t, err)
	tok, err := p.tokens.Register(ctx, "bob", "pw", "")
	require.NoError(t, err)

	var known int64
	for i := 0; i < 100; i++ {
		p.submit(t, envelope.Envelope{
			AuctionID: a.ID, KnownAmount: known, BidAmount: 50, UserToken: tok.UserToken,
		})

		e, ok := p.nextEvent(t, 2*time.Second)
		require.True(t, ok, "tracked bid %d must commit", i)
		require.Equal(t, known+50, e.Bid.TotalAmount)
		known = e.Bid.TotalAmount

		// A stale submission (the previous knownAmount) must vanish in
		// phase 1.
		if i%10 == 0 {
			p.submit(t, envelope.Envelope{
				AuctionID: a.ID, KnownAmount: known - 50, BidAmount: 999, UserToken: tok.UserToken,
			})
		}
	}

	_, ok := p.nextEvent(t, 300*time.Millisecond)
	assert.False(t, ok, "stale submissions must not commit")

	got, err := p.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.HighestBid)
	assert.Len(t, got.Bids, 100)

	v, _ := p.counters.Value(a.ID)
	assert.Equal(t, int64(5000), v)
}
