// Package auth validates the bearer credentials clients present during
// stream authentication.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emberfn/uplink/internal/store"
)

var (
	ErrInvalidToken   = errors.New("invalid bearer token")
	ErrUnknownAccount = errors.New("token does not resolve to an account")
	ErrAccountBanned  = errors.New("account is banned")
)

// BearerClaims is the shape of the launcher-issued access tokens.
type BearerClaims struct {
	App           string `json:"app,omitempty"`
	DisplayName   string `json:"dn,omitempty"`
	AuthMethod    string `json:"am,omitempty"`
	ClientService string `json:"clsvc,omitempty"`
	jwt.RegisteredClaims
}

// Verifier resolves bearer tokens against the shared uplink key and the
// account store. Stateless; safe for concurrent use.
type Verifier struct {
	key      []byte
	accounts store.Accounts
}

func NewVerifier(uplinkKey string, accounts store.Accounts) *Verifier {
	return &Verifier{key: []byte(uplinkKey), accounts: accounts}
}

// VerifyBearer validates an access token (with or without the "eg1~" scheme
// prefix) and returns the account it belongs to.
func (v *Verifier) VerifyBearer(token string) (*store.Account, error) {
	token = stripScheme(token)

	parsed, err := jwt.ParseWithClaims(token, &BearerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*BearerClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	account, ok := v.accounts.ByAccountID(claims.Subject)
	if !ok {
		return nil, ErrUnknownAccount
	}
	if account.Banned {
		return nil, ErrAccountBanned
	}
	return account, nil
}

func stripScheme(token string) string {
	if len(token) >= 4 && strings.EqualFold(token[:4], "eg1~") {
		return token[4:]
	}
	return token
}
