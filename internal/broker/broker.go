// Package broker implements phase 1 of bid settlement: verify the
// client-signed envelope and its identity token, linearize the bid through
// the counter's compare-and-increment, and forward a broker-attested
// envelope to phase 2.
package broker

import (
	"context"
	"errors"

	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/common"
	"github.com/gavelworks/gavel/internal/counter"
	"github.com/gavelworks/gavel/internal/envelope"
	"github.com/gavelworks/gavel/internal/logging"
)

// TokenVerifier is the identity check the broker performs: signature, shape
// and age. The challenge is not consulted here.
type TokenVerifier interface {
	VerifyBasic(token string) (username string, err error)
}

// Broker consumes client submissions and runs the first-phase optimistic
// commit. Invalid and conflicting bids are logged and dropped; feedback to
// the submitter is a client-side concern, not handled at this boundary.
type Broker struct {
	bus      bus.Bus
	counters counter.Store
	client   *envelope.Codec
	attested *envelope.Codec
	tokens   TokenVerifier
	log      logging.Logger
	outQueue string
}

func New(b bus.Bus, counters counter.Store, client, attested *envelope.Codec, tokens TokenVerifier, outQueue string, log logging.Logger) *Broker {
	return &Broker{
		bus:      b,
		counters: counters,
		client:   client,
		attested: attested,
		tokens:   tokens,
		log:      log,
		outQueue: outQueue,
	}
}

// Run processes inbound messages one at a time until the context is
// cancelled or the bus closes. Concurrency lives in the many envelopes in
// flight across the pipeline, not inside one service instance.
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.bus.Messages():
			if !ok {
				return nil
			}
			b.Handle(ctx, msg)
			msg.Ack()
		}
	}
}

// Handle moves one envelope through the per-message state machine:
// Received → TokenVerified → CounterChecked → Forwarded, or Rejected at any
// step.
func (b *Broker) Handle(ctx context.Context, msg bus.Message) {
	signed, err := envelope.DecodeSubmission(msg.Data)
	if err != nil {
		b.log.Warn(ctx, "dropping malformed submission", "queue", msg.Queue, "error", err)
		return
	}

	env, err := b.client.Verify(signed)
	if err != nil {
		b.log.Warn(ctx, "dropping envelope", "queue", msg.Queue, "error", err)
		return
	}

	username, err := b.tokens.VerifyBasic(env.UserToken)
	if err != nil {
		b.log.Warn(ctx, "dropping envelope with bad identity token", "auction", env.AuctionID, "error", err)
		return
	}

	prev, err := b.counters.CompareAndIncrement(ctx, env.AuctionID, env.KnownAmount, env.BidAmount)
	if err != nil {
		if errors.Is(err, common.ErrConflict) || errors.Is(err, common.ErrNotFound) {
			// Expected outcome of losing the race or bidding on an
			// unknown auction. The bid never reaches phase 2.
			b.log.Info(ctx, "bid did not pass counter check",
				"auction", env.AuctionID,
				"user", username,
				"known", env.KnownAmount,
				"error", err,
			)
			return
		}
		b.log.Error(ctx, "counter store failure", "auction", env.AuctionID, "error", err)
		return
	}

	forwarded, err := b.attested.Sign(env)
	if err != nil {
		b.log.Error(ctx, "failed to attest envelope", "auction", env.AuctionID, "error", err)
		return
	}
	payload, err := envelope.EncodeSubmission(forwarded)
	if err != nil {
		b.log.Error(ctx, "failed to encode attested submission", "auction", env.AuctionID, "error", err)
		return
	}

	if err := b.bus.Publish(ctx, b.outQueue, payload); err != nil {
		b.log.Error(ctx, "failed to forward attested envelope", "auction", env.AuctionID, "error", err)
		return
	}

	b.log.Debug(ctx, "bid forwarded",
		"auction", env.AuctionID,
		"user", username,
		"previous", prev,
		"total", env.KnownAmount+env.BidAmount,
	)
}
