// Package auction owns the durable auction aggregate: creation paired with
// counter provisioning, the conditional bid update, and read projections.
package auction

import (
	"context"
	"time"
)

// Item is the immutable descriptive payload of an auction.
type Item struct {
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	Image       string `bson:"image" json:"image"`
}

// Author records who created the auction. UserID never leaves the store.
type Author struct {
	UserID   string `bson:"userId" json:"-"`
	Username string `bson:"username" json:"username"`
}

// Bid is one committed bid. TotalAmount is the aggregate's highestBid after
// this bid applied.
type Bid struct {
	UserID      string    `bson:"userId" json:"-"`
	Username    string    `bson:"username" json:"username"`
	BidAmount   int64     `bson:"bidAmount" json:"bidAmount"`
	TotalAmount int64     `bson:"totalAmount" json:"totalAmount"`
	Date        time.Time `bson:"date" json:"date"`
}

// Auction is the durable aggregate. HighestBid equals the TotalAmount of the
// most recently committed bid and never decreases; once Sold is set the
// aggregate is read-only for bidding.
type Auction struct {
	ID         string    `bson:"_id" json:"id"`
	Item       Item      `bson:"item" json:"item"`
	Author     Author    `bson:"author" json:"author"`
	Bids       []Bid     `bson:"bids" json:"bids"`
	HighestBid int64     `bson:"highestBid" json:"highestBid"`
	Sold       bool      `bson:"sold" json:"sold"`
	Created    time.Time `bson:"created" json:"created"`
}

// Bidder identifies the user applying a bid.
type Bidder struct {
	UserID   string
	Username string
}

// Store is the aggregate store contract, implemented over MongoDB and
// in-memory for tests.
type Store interface {
	// Create inserts the auction document and provisions its paired
	// counter. When provisioning fails the document is deleted again and
	// Create fails with common.ErrStoreInconsistency; the caller never
	// observes a half-created auction.
	Create(ctx context.Context, item Item, author Author) (Auction, error)

	// VerifyOpen fails with common.ErrNotFound when the auction does not
	// exist or has been sold.
	VerifyOpen(ctx context.Context, id string) error

	// ApplyBid performs the single conditional update: match on id and
	// highestBid == knownAmount, then increment highestBid by bidAmount
	// and append the bid record. A failed match returns accepted=false
	// with a nil error; losing the race is an expected outcome, not an
	// error state.
	ApplyBid(ctx context.Context, id string, knownAmount, bidAmount int64, bidder Bidder) (accepted bool, applied Bid, err error)

	// Get returns the raw aggregate or common.ErrNotFound.
	Get(ctx context.Context, id string) (Auction, error)

	// ListOpen returns unsold auctions, newest first.
	ListOpen(ctx context.Context, offset, limit int64) ([]Auction, error)
}
