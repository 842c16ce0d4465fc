package bucket

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// URLSigner mints and verifies the download tokens appended to signed
// local URLs. One signer is shared by every local backend in a registry.
type URLSigner struct {
	key []byte
}

// NewURLSigner creates a signer from an HMAC key.
func NewURLSigner(key string) *URLSigner {
	return &URLSigner{key: []byte(key)}
}

// Sign returns a token granting access to name in the given bucket until
// expiry elapses.
func (s *URLSigner) Sign(bucket, name string, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"bkt": bucket,
		"obj": name,
		"exp": jwt.NewNumericDate(time.Now().Add(expiry)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing download token: %w", err)
	}
	return tok, nil
}

// Verify reports whether token grants access to name in the given bucket.
// Expired or malformed tokens verify false, never error.
func (s *URLSigner) Verify(bucket, name, token string) bool {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	return claims["bkt"] == bucket && claims["obj"] == name
}
