package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorScope is the only scope operator tokens carry.
const OperatorScope = "operator"

// defaultTokenTTL applies when the configured TTL is not positive.
const defaultTokenTTL = 15 * time.Minute

// OperatorClaims are the claims of an operator access token.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// IssueOperatorToken signs an HS256 token for login valid for ttl.
func IssueOperatorToken(login, secret string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	expires := now.Add(ttl)
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			Issuer:    "stripgate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Scope: OperatorScope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}
	return signed, expires, nil
}

// ParseOperatorToken verifies signature, expiry and scope of an operator token.
func ParseOperatorToken(tokenString, secret string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("stripgate"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != OperatorScope {
		return nil, fmt.Errorf("%w: wrong scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}
