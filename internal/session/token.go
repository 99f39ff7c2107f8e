package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainerrors "guestgate/pkg/domain-errors"
)

// TokenTypeGuest scopes portal credentials: guests never hold staff or admin
// tokens.
const TokenTypeGuest = "guest"

// GuestClaims is the access credential minted after signup or login. Tier is
// the post-increment tier at mint time.
type GuestClaims struct {
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
	Tier     string `json:"tier"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenMinter signs and verifies guest credentials.
type TokenMinter struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenMinter(key []byte, ttl time.Duration) (*TokenMinter, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenMinter{key: key, ttl: ttl, now: time.Now}, nil
}

// Mint issues a signed guest token.
func (m *TokenMinter) Mint(userID, deviceID uuid.UUID, tier string) (string, error) {
	now := m.now()
	claims := GuestClaims{
		UserID:   userID.String(),
		DeviceID: deviceID.String(),
		Tier:     tier,
		Type:     TokenTypeGuest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a guest token and returns its claims.
func (m *TokenMinter) Parse(raw string) (*GuestClaims, error) {
	claims := &GuestClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Type != TokenTypeGuest {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
