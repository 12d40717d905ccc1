// Package ingester implements phase 2 of bid settlement: verify the
// broker-attested envelope, apply the conditional update to the durable
// aggregate, and publish the committed-bid event for fan-out.
package ingester

import (
	"context"

	"github.com/google/uuid"

	"github.com/gavelworks/gavel/internal/auction"
	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/envelope"
	"github.com/gavelworks/gavel/internal/event"
	"github.com/gavelworks/gavel/internal/identity"
	"github.com/gavelworks/gavel/internal/logging"
)

// UserSource resolves the bidder from their identity token. The ingester
// trusts phase 1's validation: the token's expiry and challenge are not
// re-checked here.
type UserSource interface {
	ResolveUser(ctx context.Context, token string) (identity.User, error)
}

// Ingester consumes broker-attested envelopes and runs the second-phase
// optimistic commit against the document store.
type Ingester struct {
	bus      bus.Bus
	store    auction.Store
	attested *envelope.Codec
	users    UserSource
	log      logging.Logger
	outQueue string
}

func New(b bus.Bus, store auction.Store, attested *envelope.Codec, users UserSource, outQueue string, log logging.Logger) *Ingester {
	return &Ingester{
		bus:      b,
		store:    store,
		attested: attested,
		users:    users,
		log:      log,
		outQueue: outQueue,
	}
}

// Run processes inbound messages one at a time until the context is
// cancelled or the bus closes.
func (i *Ingester) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-i.bus.Messages():
			if !ok {
				return nil
			}
			i.Handle(ctx, msg)
			msg.Ack()
		}
	}
}

// Handle applies one attested envelope. A bid that lost the race against an
// already-applied update, or targets a closed auction, is dropped silently:
// the counter was already incremented in phase 1, and the stores stay
// divergent until the next successful round re-synchronizes highestBid.
func (i *Ingester) Handle(ctx context.Context, msg bus.Message) {
	signed, err := envelope.DecodeSubmission(msg.Data)
	if err != nil {
		i.log.Warn(ctx, "dropping malformed submission", "queue", msg.Queue, "error", err)
		return
	}

	env, err := i.attested.Verify(signed)
	if err != nil {
		i.log.Warn(ctx, "dropping envelope without broker attestation", "queue", msg.Queue, "error", err)
		return
	}

	if err := i.store.VerifyOpen(ctx, env.AuctionID); err != nil {
		i.log.Info(ctx, "dropping bid for unavailable auction", "auction", env.AuctionID, "error", err)
		return
	}

	user, err := i.users.ResolveUser(ctx, env.UserToken)
	if err != nil {
		i.log.Warn(ctx, "dropping bid with unresolvable user", "auction", env.AuctionID, "error", err)
		return
	}

	accepted, bid, err := i.store.ApplyBid(ctx, env.AuctionID, env.KnownAmount, env.BidAmount,
		auction.Bidder{UserID: user.ID, Username: user.Username})
	if err != nil {
		i.log.Error(ctx, "document store failure", "auction", env.AuctionID, "error", err)
		return
	}
	if !accepted {
		i.log.Info(ctx, "bid lost the document race",
			"auction", env.AuctionID,
			"user", user.Username,
			"known", env.KnownAmount,
		)
		return
	}

	committed := event.CommittedBid{
		EventID: uuid.NewString(),
		Auction: event.AuctionRef{AuctionID: env.AuctionID},
		User:    event.UserRef{Username: user.Username, AvatarURL: user.AvatarURL},
		Bid:     event.BidRef{BidAmount: bid.BidAmount, TotalAmount: bid.TotalAmount, Date: bid.Date},
	}
	payload, err := committed.Encode()
	if err != nil {
		i.log.Error(ctx, "failed to encode committed event", "auction", env.AuctionID, "error", err)
		return
	}
	if err := i.bus.Publish(ctx, i.outQueue, payload); err != nil {
		i.log.Error(ctx, "failed to publish committed event", "auction", env.AuctionID, "error", err)
		return
	}

	i.log.Debug(ctx, "bid committed",
		"auction", env.AuctionID,
		"user", user.Username,
		"total", bid.TotalAmount,
	)
}
