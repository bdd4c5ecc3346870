// Package token signs and verifies the stateless download capabilities handed
// out in quote emails. A token is base64url(payload) "." base64url(HMAC-SHA256).
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quote-service/internal/common/clock"
)

const DefaultTTL = time.Hour

var (
	ErrMalformed   = errors.New("token malformed")
	ErrSignature   = errors.New("token signature mismatch")
	ErrExpired     = errors.New("token expired")
	ErrEmptySecret = errors.New("token secret is empty")
)

var encoding = base64.RawURLEncoding

// Claims is the signed payload. Exp is in unix seconds.
type Claims struct {
	Name string `json:"name"`
	Exp  int64  `json:"exp"`
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewCodec(secret []byte, ttl time.Duration, clk clock.Clock) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Codec{secret: secret, ttl: ttl, clock: clk}, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign serializes claims and appends the MAC of the encoded payload.
func (c *Codec) Sign(claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := encoding.EncodeToString(raw)
	return payload + "." + c.mac(payload), nil
}

// Issue mints a token for name that expires after the codec TTL.
func (c *Codec) Issue(name string) (string, Claims, error) {
	claims := Claims{
		Name: name,
		Exp:  c.clock.Now().Add(c.ttl).Unix(),
	}
	tok, err := c.Sign(claims)
	return tok, claims, err
}

// Verify returns the claims of a well-formed, correctly signed, unexpired token.
func (c *Codec) Verify(tok string) (*Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}

	expected := c.mac(parts[0])
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return nil, ErrSignature
	}

	raw, err := encoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// exp may carry a fraction when a token comes from another signer.
	var decoded struct {
		Name string   `json:"name"`
		Exp  *float64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if decoded.Exp == nil || *decoded.Exp == 0 {
		return nil, ErrExpired
	}
	if *decoded.Exp < float64(c.clock.Now().Unix()) {
		return nil, ErrExpired
	}

	return &Claims{Name: decoded.Name, Exp: int64(*decoded.Exp)}, nil
}

// VerifyFor additionally requires the token to have been minted for name.
func (c *Codec) VerifyFor(tok, name string) (*Claims, error) {
	claims, err := c.Verify(tok)
	if err != nil {
		return nil, err
	}
	if claims.Name != name {
		return nil, fmt.Errorf("%w: token issued for another file", ErrSignature)
	}
	return claims, nil
}

func (c *Codec) mac(payload string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(payload))
	return encoding.EncodeToString(h.Sum(nil))
}
