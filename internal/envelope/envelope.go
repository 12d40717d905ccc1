// Package envelope defines the signed message that carries one bid through
// the pipeline. The same wire shape exists in two cryptographic forms under
// distinct secrets: client-signed (browser to broker) and broker-attested
// (broker to ingester). The secrets are separate trust domains; a compromised
// ingester must not be able to forge client-originated bids.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gavelworks/gavel/internal/common"
)

// Envelope is the logical bid payload.
type Envelope struct {
	AuctionID   string `json:"auctionId"`
	KnownAmount int64  `json:"knownAmount"`
	BidAmount   int64  `json:"bidAmount"`
	UserToken   string `json:"userToken"`
}

// Validate checks required fields. KnownAmount may legitimately be zero for
// the first bid on an auction.
func (e Envelope) Validate() error {
	switch {
	case e.AuctionID == "":
		return fmt.Errorf("auctionId not given: %w", common.ErrValidation)
	case e.UserToken == "":
		return fmt.Errorf("userToken not given: %w", common.ErrValidation)
	case e.BidAmount <= 0:
		return fmt.Errorf("bidAmount must be positive: %w", common.ErrValidation)
	case e.KnownAmount < 0:
		return fmt.Errorf("knownAmount must not be negative: %w", common.ErrValidation)
	}
	return nil
}

type envelopeClaims struct {
	jwt.RegisteredClaims
	Envelope
}

// Codec signs and verifies envelopes under one secret. Construct one codec
// per trust domain.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Sign wraps the envelope in a signed token.
func (c *Codec) Sign(e Envelope) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, envelopeClaims{Envelope: e}).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign envelope: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and the envelope shape.
func (c *Codec) Verify(token string) (Envelope, error) {
	var claims envelopeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Envelope{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if err := claims.Envelope.Validate(); err != nil {
		return Envelope{}, err
	}
	return claims.Envelope, nil
}

// Submission is the wire wrapper carried on the queues: a single signed bid.
type Submission struct {
	Bid string `json:"bid"`
}

// EncodeSubmission marshals a signed bid for publication.
func EncodeSubmission(signed string) ([]byte, error) {
	return json.Marshal(Submission{Bid: signed})
}

// DecodeSubmission unwraps a queue payload.
func DecodeSubmission(data []byte) (string, error) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", fmt.Errorf("malformed submission: %w", common.ErrValidation)
	}
	if sub.Bid == "" {
		return "", fmt.Errorf("empty submission: %w", common.ErrValidation)
	}
	return sub.Bid, nil
}
