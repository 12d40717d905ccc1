package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gavelworks/gavel/internal/common"
	"github.com/gavelworks/gavel/internal/counter"
)

// MongoStore persists auctions in the "auctions" collection. The paired
// counter lives in the counter store; both writes happen in Create, with the
// document insert compensated when provisioning fails.
type MongoStore struct {
	collection *mongo.Collection
	counters   counter.Store
	now        func() time.Time
}

func NewMongoStore(db *mongo.Database, counters counter.Store) *MongoStore {
	return &MongoStore{
		collection: db.Collection("auctions"),
		counters:   counters,
		now:        time.Now,
	}
}

func (s *MongoStore) Create(ctx context.Context, item Item, author Author) (Auction, error) {
	a := Auction{
		ID:         uuid.NewString(),
		Item:       item,
		Author:     author,
		Bids:       []Bid{},
		HighestBid: 0,
		Sold:       false,
		Created:    s.now().UTC(),
	}

	if _, err := s.collection.InsertOne(ctx, a); err != nil {
		return Auction{}, fmt.Errorf("failed to insert auction: %w", err)
	}

	if err := s.counters.Provision(ctx, a.ID); err != nil {
		// Roll the document back; the caller sees one hard failure,
		// never a half-created auction.
		if _, delErr := s.collection.DeleteOne(ctx, bson.M{"_id": a.ID}); delErr != nil {
			return Auction{}, fmt.Errorf("counter provisioning failed (%v) and rollback failed (%v): %w",
				err, delErr, common.ErrStoreInconsistency)
		}
		return Auction{}, fmt.Errorf("counter provisioning failed, rolled back: %w", common.ErrStoreInconsistency)
	}

	return a, nil
}

func (s *MongoStore) VerifyOpen(ctx context.Context, id string) error {
	err := s.collection.FindOne(ctx,
		bson.M{"_id": id, "sold": false},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("auction %q does not exist or has been sold: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to verify auction %q: %w", id, err)
	}
	return nil
}

func (s *MongoStore) ApplyBid(ctx context.Context, id string, knownAmount, bidAmount int64, bidder Bidder) (bool, Bid, error) {
	bid := Bid{
		UserID:      bidder.UserID,
		Username:    bidder.Username,
		BidAmount:   bidAmount,
		TotalAmount: knownAmount + bidAmount,
		Date:        s.now().UTC(),
	}

	res, err := s.collection.UpdateOne(ctx,
		// The highestBid match is the optimistic-concurrency guard: it
		// only holds when no other bid landed since the bidder observed
		// knownAmount.
		bson.M{"_id": id, "highestBid": knownAmount},
		bson.M{
			"$inc":  bson.M{"highestBid": bidAmount},
			"$push": bson.M{"bids": bid},
		},
	)
	if err != nil {
		return false, Bid{}, fmt.Errorf("failed to apply bid to %q: %w", id, err)
	}
	if res.ModifiedCount == 0 {
		return false, Bid{}, nil
	}
	return true, bid, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (Auction, error) {
	var a Auction
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Auction{}, fmt.Errorf("auction %q: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return Auction{}, fmt.Errorf("failed to load auction %q: %w", id, err)
	}
	return a, nil
}

func (s *MongoStore) ListOpen(ctx context.Context, offset, limit int64) ([]Auction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created", Value: -1}}).
		SetSkip(offset)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, bson.M{"sold": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}

	var auctions []Auction
	if err := cursor.All(ctx, &auctions); err != nil {
		return nil, fmt.Errorf("failed to decode auctions: %w", err)
	}
	return auctions, nil
}
