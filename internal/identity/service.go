package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gavelworks/gavel/internal/common"
)

// tokenClaims is the identity token payload: username, creation timestamp
// and a challenge bound to the account's current credential hash.
type tokenClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	Created   string `json:"created"`
	Challenge string `json:"challenge"`
}

// Token is an issued identity token with its public account fields.
type Token struct {
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl"`
	UserToken string    `json:"userToken"`
	Expires   time.Time `json:"expires"`
}

// Service issues and verifies identity tokens against the account store.
type Service struct {
	accounts       Accounts
	tokenSecret    []byte
	passwordSecret []byte
	ttl            time.Duration
	now            func() time.Time
}

func NewService(accounts Accounts, tokenSecret, passwordSecret []byte, ttl time.Duration) *Service {
	return &Service{
		accounts:       accounts,
		tokenSecret:    tokenSecret,
		passwordSecret: passwordSecret,
		ttl:            ttl,
		now:            time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// mac chains two HMAC-SHA256 rounds: the salt is first keyed with the
// service-wide password secret, and the result keys the payload digest.
func (s *Service) mac(plain, salt string) string {
	outer := hmac.New(sha256.New, s.passwordSecret)
	outer.Write([]byte(salt))
	key := outer.Sum(nil)

	inner := hmac.New(sha256.New, key)
	inner.Write([]byte(plain))
	return base64.StdEncoding.EncodeToString(inner.Sum(nil))
}

func (s *Service) hashPassword(password, username string) string {
	return s.mac(password, username)
}

// challenge binds a token to the account's current password hash.
func (s *Service) challenge(username, passwordHash string) string {
	return s.mac(username, passwordHash)
}

// Register creates an account and issues its first token.
func (s *Service) Register(ctx context.Context, username, password, avatarURL string) (Token, error) {
	account := Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: s.hashPassword(password, username),
		AvatarURL:    avatarURL,
	}
	if err := s.accounts.Insert(ctx, account); err != nil {
		return Token{}, err
	}
	return s.Issue(ctx, username)
}

// Login verifies the credential pair and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	account, err := s.accounts.Find(ctx, username)
	if err != nil {
		return Token{}, err
	}
	if !hmac.Equal([]byte(account.PasswordHash), []byte(s.hashPassword(password, username))) {
		return Token{}, fmt.Errorf("cannot verify user/password combination: %w", common.ErrNotFound)
	}
	return s.Issue(ctx, username)
}

// ChangePassword rotates the credential hash. Every token issued against the
// old hash fails challenge verification from this point on.
func (s *Service) ChangePassword(ctx context.Context, username, password string) error {
	account, err := s.accounts.Find(ctx, username)
	if err != nil {
		return err
	}
	account.PasswordHash = s.hashPassword(password, username)
	return s.accounts.Update(ctx, account)
}

// Issue signs a fresh identity token for an existing account.
func (s *Service) Issue(ctx context.Context, username string) (Token, error) {
	account, err := s.accounts.Find(ctx, username)
	if err != nil {
		return Token{}, err
	}

	now := s.now()
	claims := tokenClaims{
		Username:  username,
		Created:   now.UTC().Format(time.RFC3339),
		Challenge: s.challenge(username, account.PasswordHash),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Token{
		Username:  username,
		AvatarURL: account.AvatarURL,
		UserToken: signed,
		Expires:   now.Add(s.ttl),
	}, nil
}

// decode parses and signature-checks a token, returning its claims.
func (s *Service) decode(token string) (tokenClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.tokenSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return tokenClaims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

// checkShape validates required fields and token age.
func (s *Service) checkShape(claims tokenClaims) error {
	if claims.Username == "" || claims.Created == "" || claims.Challenge == "" {
		return fmt.Errorf("missing token fields: %w", common.ErrInvalidToken)
	}
	created, err := time.Parse(time.RFC3339, claims.Created)
	if err != nil {
		return fmt.Errorf("bad created timestamp: %w", common.ErrInvalidToken)
	}
	if s.now().Sub(created) >= s.ttl {
		return fmt.Errorf("token older than %s: %w", s.ttl, common.ErrTokenExpired)
	}
	return nil
}

// VerifyBasic checks signature, shape and age only. This is the broker-side
// check; the challenge is left to the full Verify on the read path.
func (s *Service) VerifyBasic(token string) (string, error) {
	claims, err := s.decode(token)
	if err != nil {
		return "", err
	}
	if err := s.checkShape(claims); err != nil {
		return "", err
	}
	return claims.Username, nil
}

// Verify performs the full check including the credential-bound challenge.
func (s *Service) Verify(ctx context.Context, token string) (User, error) {
	claims, err := s.decode(token)
	if err != nil {
		return User{}, err
	}
	if err := s.checkShape(claims); err != nil {
		return User{}, err
	}

	account, err := s.accounts.Find(ctx, claims.Username)
	if err != nil {
		return User{}, err
	}

	want := s.challenge(claims.Username, account.PasswordHash)
	if !hmac.Equal([]byte(claims.Challenge), []byte(want)) {
		return User{}, fmt.Errorf("challenge mismatch: %w", common.ErrInvalidToken)
	}

	return User{ID: account.ID, Username: account.Username, AvatarURL: account.AvatarURL}, nil
}

// ResolveUser decodes a token by signature only and resolves the account.
// The ingester uses this: expiry and challenge were already checked upstream
// and are not re-validated here.
func (s *Service) ResolveUser(ctx context.Context, token string) (User, error) {
	claims, err := s.decode(token)
	if err != nil {
		return User{}, err
	}
	account, err := s.accounts.Find(ctx, claims.Username)
	if err != nil {
		return User{}, err
	}
	return User{ID: account.ID, Username: account.Username, AvatarURL: account.AvatarURL}, nil
}

// PublicProfile returns the public projection of an account.
func (s *Service) PublicProfile(ctx context.Context, username string) (Profile, error) {
	account, err := s.accounts.Find(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Username: account.Username, AvatarURL: account.AvatarURL}, nil
}
