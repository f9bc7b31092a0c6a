package token

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
)

const refreshTokenLength = 32 // 32 bytes = 256 bits

// Claims is the subset of access token claims the client cares about.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Roles     []string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Minter issues signed access tokens and opaque refresh tokens for a profile.
type Minter struct {
	signer   Signer
	issuer   string
	audience string
	ttl      time.Duration
	nowFunc  func() time.Time
}

type MinterOption func(*Minter)

func WithTTL(ttl time.Duration) MinterOption {
	return func(m *Minter) {
		m.ttl = ttl
	}
}

func WithIssuer(issuer string) MinterOption {
	return func(m *Minter) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) MinterOption {
	return func(m *Minter) {
		m.audience = audience
	}
}

func WithNowFunc(now func() time.Time) MinterOption {
	return func(m *Minter) {
		m.nowFunc = now
	}
}

func NewMinter(signer Signer, options ...MinterOption) *Minter {
	m := &Minter{
		signer: signer,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.ttl == 0 {
		m.ttl = 15 * time.Minute
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// AccessToken signs a new access token for profile and returns it with its expiry.
// Two calls for the same profile differ only in iat, exp and jti.
func (m *Minter) AccessToken(profile users.Profile) (string, time.Time, error) {
	now := m.nowFunc()
	exp := now.Add(m.ttl)

	claims := jwt.MapClaims{
		"sub":   profile.ID,           // The user the token was issued to
		"email": profile.Email,        // Convenience claim for the client
		"name":  profile.DisplayName,  // Display name at issue time
		"roles": profile.Roles.List(), // Sorted role names
		"iat":   now.Unix(),           // Issued At
		"exp":   exp.Unix(),           // Expiry
		"jti":   uuid.New().String(),  // Unique token ID
	}
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}
	if m.audience != "" {
		claims["aud"] = m.audience
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Minter.AccessToken] Sign")
	}
	return signed, time.Unix(exp.Unix(), 0), nil
}

// Verify parses and validates a token minted by this Minter.
func (m *Minter) Verify(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	tok, err := parser.Parse(raw, m.signer.GetVerificationKey)
	if err != nil {
		return nil, errors.Wrap(err, "[Minter.Verify] Parse")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[Minter.Verify] error extracting claims")
	}
	return claimsFromMap(mc), nil
}

// ParseUnverified reads claims without checking the signature. The client only
// uses this to learn expiry of tokens it was handed by a provider.
func ParseUnverified(raw string) (*Claims, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[token.ParseUnverified]")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[token.ParseUnverified] error extracting claims")
	}
	return claimsFromMap(mc), nil
}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	c := &Claims{}
	c.Subject, _ = mc["sub"].(string)
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)
	c.ID, _ = mc["jti"].(string)
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if raw, ok := mc["roles"].([]interface{}); ok {
		c.Roles = interfaceArrayToString(raw)
	}
	return c
}

func interfaceArrayToString(iArray []interface{}) []string {
	stringSlice := make([]string, 0)
	for _, v := range iArray {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// NewRefreshToken returns a random opaque refresh token.
func NewRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[token.NewRefreshToken] rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}
