// Package token encodes and validates compact HS256 session tokens.
//
// Validation outcomes are ordinary values (Result), not errors: callers
// branch on them every time a token is used.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Стандартные claims, которые понимает кодек
const (
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimNotBefore = "nbf"
	ClaimSubject   = "sub"
)

// DefaultLeeway is the tolerated clock skew for issued-at checks.
const DefaultLeeway = 30 * time.Second

// ErrEmptySecret is returned by Encode when no signing secret is configured.
var ErrEmptySecret = errors.New("token secret cannot be empty")

// Result is the outcome of token validation.
type Result int

const (
	Valid Result = iota
	NotYetValid
	Expired
	SignatureInvalid
	Malformed
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case NotYetValid:
		return "not_yet_valid"
	case Expired:
		return "expired"
	case SignatureInvalid:
		return "signature_invalid"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Codec подписывает и проверяет токены.
// Нулевое значение пригодно к использованию: time.Now и DefaultLeeway.
type Codec struct {
	// Now returns the current time. Tests override it.
	Now func() time.Time
	// Leeway is the clock-skew tolerance applied to iat/nbf.
	Leeway time.Duration
	// Lifetime, when positive, bounds tokens that carry no exp claim: iat + Lifetime.
	Lifetime time.Duration
}

// Option настраивает Codec
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.Now = now }
}

// WithLeeway sets the clock-skew tolerance.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.Leeway = d }
}

// WithLifetime sets the implicit lifetime for tokens without exp.
func WithLifetime(d time.Duration) Option {
	return func(c *Codec) { c.Lifetime = d }
}

// New создает кодек с заданными опциями
func New(opts ...Option) *Codec {
	c := &Codec{Leeway: DefaultLeeway}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = New()

// Encode signs payload with secret using the default codec.
func Encode(payload map[string]any, secret []byte) (string, error) {
	return defaultCodec.Encode(payload, secret)
}

// Validate checks token against secret using the default codec.
func Validate(token string, secret []byte, minutesBeforeExpiration int) Result {
	return defaultCodec.Validate(token, secret, minutesBeforeExpiration)
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Encode создает подписанный HS256 токен из payload.
// Если в payload нет iat, он добавляется из текущего времени (unix seconds).
// Payload не модифицируется.
func (c *Codec) Encode(payload map[string]any, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	claims := make(jwt.MapClaims, len(payload)+1)
	for k, v := range payload {
		claims[k] = v
	}
	if _, ok := claims[ClaimIssuedAt]; !ok {
		claims[ClaimIssuedAt] = c.now().Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and time claims of token.
// The expiration check is brought forward by minutesBeforeExpiration*60 seconds.
func (c *Codec) Validate(tokenString string, secret []byte, minutesBeforeExpiration int) Result {
	_, result := c.Decode(tokenString, secret, minutesBeforeExpiration)
	return result
}

// Decode is Validate that also returns the claims when the result is Valid.
func (c *Codec) Decode(tokenString string, secret []byte, minutesBeforeExpiration int) (map[string]any, Result) {
	if tokenString == "" {
		return nil, Malformed
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		// Принимаем только HMAC, иначе подмена alg позволила бы обойти подпись
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, SignatureInvalid
		default:
			return nil, Malformed
		}
	}

	now := c.now()

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, Malformed
	}
	if iat != nil && iat.After(now.Add(c.Leeway)) {
		return nil, NotYetValid
	}

	nbf, err := claims.GetNotBefore()
	if err != nil {
		return nil, Malformed
	}
	if nbf != nil && nbf.After(now.Add(c.Leeway)) {
		return nil, NotYetValid
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, Malformed
	}

	var expiresAt time.Time
	switch {
	case exp != nil:
		expiresAt = exp.Time
	case c.Lifetime > 0 && iat != nil:
		expiresAt = iat.Add(c.Lifetime)
	}

	if !expiresAt.IsZero() {
		if minutesBeforeExpiration < 0 {
			minutesBeforeExpiration = 0
		}
		margin := time.Duration(minutesBeforeExpiration*60) * time.Second
		if !now.Add(margin).Before(expiresAt) {
			return nil, Expired
		}
	}

	return claims, Valid
}

// StringClaim returns a string claim or "" when absent or of another type.
func StringClaim(claims map[string]any, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

// PeekClaims returns the claims of token without verifying the signature.
// The result only selects the verification key and must not be trusted.
func PeekClaims(tokenString string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}
