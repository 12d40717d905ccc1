// Package event defines the committed-bid event published on the fan-out
// queue after phase 2.
package event

import (
	"encoding/json"
	"time"
)

// CommittedBid announces one durably committed bid to downstream
// subscribers (realtime fan-out, archival).
type CommittedBid struct {
	EventID string     `json:"eventId"`
	Auction AuctionRef `json:"auction"`
	User    UserRef    `json:"user"`
	Bid     BidRef     `json:"bid"`
}

type AuctionRef struct {
	AuctionID string `json:"auctionId"`
}

type UserRef struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type BidRef struct {
	BidAmount   int64     `json:"bidAmount"`
	TotalAmount int64     `json:"totalAmount"`
	Date        time.Time `json:"date"`
}

// Encode marshals the event for publication.
func (e CommittedBid) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals a fan-out payload.
func Decode(data []byte) (CommittedBid, error) {
	var e CommittedBid
	err := json.Unmarshal(data, &e)
	return e, err
}
