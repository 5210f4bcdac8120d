package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
)

// Operator is the single operator account.
type Operator struct {
	login        string
	passwordHash string
	secret       string
	tokenTTL     time.Duration
}

// NewOperator builds the operator account from cfg. A plain password is
// hashed once here so it is not kept in memory. It returns nil, nil when
// no operator login is configured.
func NewOperator(cfg config.SecurityConfig) (*Operator, error) {
	op := cfg.Operator
	if op.Login == "" {
		return nil, nil //nolint:nilnil // operator surfaces are optional
	}

	hash := op.PasswordHash
	if hash == "" {
		var err error
		hash, err = HashPassword(op.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing operator password: %w", err)
		}
	} else if _, _, _, err := parsePHC(hash); err != nil {
		return nil, fmt.Errorf("operator password_hash: %w", err)
	}

	return &Operator{
		login:        op.Login,
		passwordHash: hash,
		secret:       cfg.JWT.Secret,
		tokenTTL:     time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
	}, nil
}

// Login returns the operator's login name.
func (o *Operator) Login() string { return o.login }

// Authenticate checks a login and password pair.
func (o *Operator) Authenticate(login, password string) error {
	if o == nil {
		return ErrOperatorDisabled
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(o.login)) == 1

	// Always run the hash so a wrong login costs the same as a wrong password.
	ok, err := VerifyPassword(password, o.passwordHash)
	if err != nil {
		return fmt.Errorf("verifying operator password: %w", err)
	}
	if !loginOK || !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// IssueToken authenticates and returns a signed access token with its expiry.
func (o *Operator) IssueToken(login, password string) (string, time.Time, error) {
	if err := o.Authenticate(login, password); err != nil {
		return "", time.Time{}, err
	}
	return IssueOperatorToken(o.login, o.secret, o.tokenTTL)
}

// VerifyToken parses an operator access token.
func (o *Operator) VerifyToken(token string) (*OperatorClaims, error) {
	if o == nil {
		return nil, ErrOperatorDisabled
	}
	return ParseOperatorToken(token, o.secret)
}

// CheckAPIKey compares a presented API key with the configured one in
// constant time. An empty configured key never matches.
func CheckAPIKey(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
