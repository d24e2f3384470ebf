package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// TokenID identifies a session or verification record server-side. 128
// bits of entropy on its own, before the secret half is even considered.
type TokenID [16]byte

const (
	secretSize   = 32
	tokenRawSize = len(TokenID{}) + secretSize
)

// NewTokenID returns a random record identifier.
func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

// String renders the ID as compact unpadded base64url.
func (t TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// ParseTokenID reverses [TokenID.String].
func ParseTokenID(s string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewSecret returns the random secret half of an opaque token. Only its
// SHA-256 hash is persisted; the plaintext exists solely inside the token
// handed to the client.
func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the persistence form of a token secret.
func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeToken packs a record ID and its secret into the opaque string a
// client carries. Both session tokens and verification tokens use this
// shape: 48 raw bytes, base64url, no padding.
func EncodeToken(id TokenID, secret [secretSize]byte) string {
	var raw [tokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeToken splits an opaque token back into record ID and secret.
// Malformed input of any length is rejected before the store is touched.
func DecodeToken(token string) (TokenID, [secretSize]byte, error) {
	var (
		id     TokenID
		secret [secretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != tokenRawSize {
		return id, secret, errors.New("invalid token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}
