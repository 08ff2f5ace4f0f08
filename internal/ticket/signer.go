// Package ticket signs and verifies matchmaking handoff tokens. A ticket is
// issued by the HTTP matchmaking endpoint and presented by the client when it
// opens its matchmaker socket.
package ticket

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidTicket = errors.New("invalid matchmaking ticket")

// ticketTTL bounds how long an issued ticket stays presentable.
const ticketTTL = 30 * time.Second

// Claims is the canonical handoff payload signed into a ticket.
type Claims struct {
	AccountID    string         `json:"accountId"`
	BucketID     string         `json:"bucketId"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	ExpiresAt    string         `json:"expiresAt"`
	Nonce        string         `json:"nonce"`
	SessionID    string         `json:"sessionId"`
	MatchID      string         `json:"matchId"`
	Region       string         `json:"region"`
	Playlist     string         `json:"playlist"`
	PartyMembers string         `json:"partyMembers,omitempty"`
	CustomKey    string         `json:"customKey,omitempty"`
	jwt.RegisteredClaims
}

// Response is what the HTTP boundary returns to the client: the signed
// ticket plus where to present it.
type Response struct {
	ServiceURL string         `json:"serviceUrl"`
	TicketType string         `json:"ticketType"`
	Payload    map[string]any `json:"payload"`
	Signature  string         `json:"signature"`
}

// Signer produces and verifies HS256 signatures over ticket claims using the
// process-wide shared secret. No mutable state; safe for concurrent use.
type Signer struct {
	key []byte
}

func NewSigner(uplinkKey string) *Signer {
	return &Signer{key: []byte(uplinkKey)}
}

func (s *Signer) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify is the symmetric counterpart to Sign.
func (s *Signer) Verify(signed string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidTicket
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}

// Issue fills in the generated fields of a handoff for the given bucket and
// signs it. bucketID is "buildId:_:region:playlist".
func (s *Signer) Issue(serviceURL, accountID, bucketID string, attributes map[string]any) (*Response, error) {
	parts := strings.Split(bucketID, ":")
	if len(parts) != 4 {
		return nil, ErrInvalidTicket
	}
	region, playlist := parts[2], parts[3]

	claims := Claims{
		AccountID:  accountID,
		BucketID:   bucketID,
		Attributes: attributes,
		ExpiresAt:  time.Now().Add(ticketTTL).UTC().Format(time.RFC3339),
		Nonce:      uuid.NewString(),
		SessionID:  hex32(),
		MatchID:    hex32(),
		Region:     region,
		Playlist:   playlist,
		CustomKey:  "NO_KEY",
	}
	signature, err := s.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &Response{
		ServiceURL: serviceURL,
		TicketType: "mms-player",
		Payload: map[string]any{
			"playerId":   accountID,
			"bucketId":   bucketID,
			"attributes": attributes,
			"expireAt":   claims.ExpiresAt,
			"nonce":      claims.Nonce,
		},
		Signature: signature,
	}, nil
}

func hex32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
