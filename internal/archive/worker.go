package archive

import (
	"context"
	"time"

	"github.com/gavelworks/gavel/internal/bus"
	"github.com/gavelworks/gavel/internal/event"
	"github.com/gavelworks/gavel/internal/logging"
)

// Worker consumes the committed-event queue and persists every event.
type Worker struct {
	bus bus.Bus
	db  *PostgresClient
	log logging.Logger
}

func NewWorker(b bus.Bus, db *PostgresClient, log logging.Logger) *Worker {
	return &Worker{bus: b, db: db, log: log}
}

// Run processes events until the context is cancelled or the bus closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.bus.Messages():
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg bus.Message) {
	committed, err := event.Decode(msg.Data)
	if err != nil {
		w.log.Warn(ctx, "dropping undecodable committed event", "queue", msg.Queue, "error", err)
		msg.Ack()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.db.InsertCommitted(dbCtx, committed); err != nil {
		// Leave the message unacked; an acknowledged queue redelivers it.
		w.log.Error(ctx, "failed to archive committed bid", "event", committed.EventID, "error", err)
		return
	}

	w.log.Debug(ctx, "bid archived",
		"event", committed.EventID,
		"auction", committed.Auction.AuctionID,
		"total", committed.Bid.TotalAmount,
	)
	msg.Ack()
}
