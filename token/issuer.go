// Package token mints and validates the scoped access token embedded
// in every serving workload. A token is bound to one (owner, instance)
// pair and is how the deployed workload authenticates back to the
// controller.
package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/modelflow-ai/modelflow/config"
	"github.com/modelflow-ai/modelflow/types"
)

// Claims are the JWT claims carried by a serving token.
type Claims struct {
	InstanceID int64 `json:"instance_id"`
	jwt.RegisteredClaims
}

// Issuer mints HS256-signed serving tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates an Issuer from configuration.
func NewIssuer(cfg config.TokenConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret not configured")
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
	}, nil
}

// Mint issues a token scoped to (owner, instance).
func (i *Issuer) Mint(ownerID, instanceID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		InstanceID: instanceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.issuer,
			Subject:  strconv.FormatInt(ownerID, 10),
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign serving token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a serving token, returning its claims.
func (i *Issuer) Validate(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.issuer),
	)
	if err != nil {
		return nil, types.NewError(types.ErrTokenInvalid, "parse serving token").WithCause(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, types.NewError(types.ErrTokenInvalid, "unexpected claims type")
	}
	return claims, nil
}

// OwnerID extracts the owner id from validated claims.
func (c *Claims) OwnerID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, types.NewError(types.ErrTokenInvalid, "malformed subject claim").WithCause(err)
	}
	return id, nil
}
