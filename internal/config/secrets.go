package config

import "time"

// Secrets holds the signing material shared between pipeline stages. The
// client-envelope secret and the broker-attestation secret are distinct trust
// domains: the first is shared with bid submitters, the second only between
// the broker and the ingester. Collapsing them would let a compromised
// ingester forge client-originated bids.
type Secrets struct {
	// WebBidSecret verifies client-signed bid envelopes.
	WebBidSecret string
	// UserTokenSecret signs and verifies identity tokens.
	UserTokenSecret string
	// BidBrokerSecret signs broker-attested envelopes.
	BidBrokerSecret string
	// PasswordSecret keys the credential HMAC.
	PasswordSecret string
	// TokenTTL bounds identity token age.
	TokenTTL time.Duration
}

// LoadSecrets reads signing settings from the environment. The defaults are
// development values and must be overridden in any real deployment.
func LoadSecrets() Secrets {
	return Secrets{
		WebBidSecret:    GetEnv("WEB_BID_SECRET", "dev-web-bid-secret"),
		UserTokenSecret: GetEnv("USER_TOKEN_SECRET", "dev-user-token-secret"),
		BidBrokerSecret: GetEnv("BID_BROKER_SECRET", "dev-bid-broker-secret"),
		PasswordSecret:  GetEnv("PASSWORD_SECRET", "dev-password-secret"),
		TokenTTL:        GetEnvDuration("USER_TOKEN_TTL", 24*time.Hour),
	}
}
