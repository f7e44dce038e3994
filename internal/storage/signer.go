package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("signed url expired")
	ErrTokenInvalid = errors.New("signed url invalid")
)

// blobClaims is the payload of a local signed URL token.
type blobClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens that stand in for presigned
// object URLs when blobs are served by this process. Every token carries a
// fresh jti, so two mints for the same path never produce the same URL.
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	return &Signer{key: []byte(secret), now: time.Now}, nil
}

// Sign returns a token for path valid for ttl, and its expiry.
func (s *Signer) Sign(path string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("ttl must be positive")
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := blobClaims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Verify returns the object path carried by a valid, unexpired token.
func (s *Signer) Verify(token string) (string, error) {
	var c blobClaims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if c.ExpiresAt == nil || c.Path == "" {
		return "", ErrTokenInvalid
	}
	return c.Path, nil
}
