// Package tokens issues and verifies the HS256 access/refresh pair used by the
// backend API.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"example.com/mindfeed/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("wrong token type")
)

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue returns a fresh access and refresh token for userID.
func (i *Issuer) Issue(userID string) (models.Credentials, error) {
	access, err := i.sign(userID, Access, i.accessTTL)
	if err != nil {
		return models.Credentials{}, err
	}
	refresh, err := i.sign(userID, Refresh, i.refreshTTL)
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{Access: access, Refresh: refresh}, nil
}

// AccessFor signs a new access token only.
func (i *Issuer) AccessFor(userID string) (string, error) {
	return i.sign(userID, Access, i.accessTTL)
}

func (i *Issuer) sign(userID string, kind Kind, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"token_type": string(kind),
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	s, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", kind, err)
	}
	return s, nil
}

// Verify checks signature, expiry and type, and returns the user id.
func (i *Issuer) Verify(tokenStr string, want Kind) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if kind, _ := claims["token_type"].(string); Kind(kind) != want {
		return "", ErrWrongKind
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}
