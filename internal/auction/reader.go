package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gavelworks/gavel/internal/common"
)

// Profile is a public user projection attached to read views.
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// ProfileSource resolves public profiles by username.
type ProfileSource interface {
	PublicProfile(ctx context.Context, username string) (Profile, error)
}

// View is the external projection of an auction: internal user ids are
// stripped, the author and the current highest bidder carry public profiles.
type View struct {
	ID            string    `json:"id"`
	Item          Item      `json:"item"`
	Author        Profile   `json:"author"`
	Bids          []BidView `json:"bids"`
	HighestBid    int64     `json:"highestBid"`
	HighestBidder *Profile  `json:"highestBidder,omitempty"`
	Sold          bool      `json:"sold"`
	Created       string    `json:"created"`
}

// BidView is a bid with the bidder's internal id removed.
type BidView struct {
	Username    string `json:"username"`
	BidAmount   int64  `json:"bidAmount"`
	TotalAmount int64  `json:"totalAmount"`
	Date        string `json:"date"`
}

// Reader builds external projections from the store and profile source.
type Reader struct {
	store    Store
	profiles ProfileSource
}

func NewReader(store Store, profiles ProfileSource) *Reader {
	return &Reader{store: store, profiles: profiles}
}

// Read returns the full projection of one auction, enriched with the highest
// bidder's and the author's public profiles.
func (r *Reader) Read(ctx context.Context, id string) (View, error) {
	if err := r.store.VerifyOpen(ctx, id); err != nil {
		return View{}, err
	}

	a, err := r.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}

	view, err := r.project(ctx, a)
	if err != nil {
		return View{}, err
	}

	if len(a.Bids) > 0 {
		latest := a.Bids[0]
		for _, b := range a.Bids[1:] {
			if b.Date.After(latest.Date) {
				latest = b
			}
		}
		p, err := r.profiles.PublicProfile(ctx, latest.Username)
		if err != nil {
			return View{}, fmt.Errorf("failed to resolve highest bidder: %w", err)
		}
		view.HighestBidder = &p
	}

	return view, nil
}

// ListOpen returns projections of all unsold auctions, newest first.
func (r *Reader) ListOpen(ctx context.Context, offset, limit int64) ([]View, error) {
	auctions, err := r.store.ListOpen(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(auctions))
	for _, a := range auctions {
		v, err := r.project(ctx, a)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (r *Reader) project(ctx context.Context, a Auction) (View, error) {
	author, err := r.profiles.PublicProfile(ctx, a.Author.Username)
	if err != nil {
		// The author may have been deleted; fall back to the stored
		// username without an avatar.
		if !isNotFound(err) {
			return View{}, fmt.Errorf("failed to resolve author: %w", err)
		}
		author = Profile{Username: a.Author.Username}
	}

	bids := make([]BidView, 0, len(a.Bids))
	for _, b := range a.Bids {
		bids = append(bids, BidView{
			Username:    b.Username,
			BidAmount:   b.BidAmount,
			TotalAmount: b.TotalAmount,
			Date:        b.Date.UTC().Format(timeLayout),
		})
	}

	return View{
		ID:         a.ID,
		Item:       a.Item,
		Author:     author,
		Bids:       bids,
		HighestBid: a.HighestBid,
		Sold:       a.Sold,
		Created:    a.Created.UTC().Format(timeLayout),
	}, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
