// Package token issues and verifies room-scoped player credentials.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/id"
)

const (
	issuerName = "multiplayergame"
	defaultTTL = 12 * time.Hour
	minSecret  = 16
)

// Claims binds a player identity to a single room.
type Claims struct {
	RoomID string `json:"roomId"`
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	// Secret signs tokens with HMAC-SHA256. At least 16 bytes.
	Secret []byte
	// TTL bounds token lifetime. Defaults to 12 hours, long enough to
	// outlive any room.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Issuer mints and verifies player tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates an Issuer from config.
func New(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < minSecret {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecret)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: cfg.Secret, ttl: ttl, now: now}, nil
}

// Grant is an issued credential for one player in one room.
type Grant struct {
	PlayerID  string    `json:"playerId"`
	RoomID    string    `json:"roomId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue mints a player token for the room. An empty playerID gets a
// generated identifier.
func (i *Issuer) Issue(roomID, playerID string) (Grant, error) {
	if i == nil {
		return Grant{}, fmt.Errorf("token issuer is nil")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Grant{}, fmt.Errorf("room id is required")
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		generated, err := id.NewID()
		if err != nil {
			return Grant{}, fmt.Errorf("generate player id: %w", err)
		}
		playerID = "p_" + generated
	}

	now := i.now().UTC()
	expires := now.Add(i.ttl)
	claims := Claims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Grant{}, fmt.Errorf("sign player token: %w", err)
	}
	return Grant{PlayerID: playerID, RoomID: roomID, Token: signed, ExpiresAt: expires}, nil
}

// Verify parses a presented token and returns the bound room and player.
// Any parse, signature, or expiry failure maps to UNAUTHENTICATED.
func (i *Issuer) Verify(tokenString string) (roomID, playerID string, err error) {
	if i == nil {
		return "", "", apperrors.New(apperrors.CodeUnauthenticated, "token issuer is not configured")
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", "", apperrors.New(apperrors.CodeUnauthenticated, "player token is required")
	}

	var claims Claims
	_, err = jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }),
	)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeUnauthenticated, "verify player token", err)
	}
	roomID = strings.TrimSpace(claims.RoomID)
	playerID = strings.TrimSpace(claims.Subject)
	if roomID == "" || playerID == "" {
		return "", "", apperrors.New(apperrors.CodeUnauthenticated, "player token is missing identity claims")
	}
	return roomID, playerID, nil
}
