package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// SessionID is the opaque token handed to the client.
type SessionID string

// NoSessionID is the zero SessionID.
const NoSessionID = SessionID("")

const (
	sessionIDRandomBytes = 32
	// base64url without padding of 32 random bytes plus a 32-byte HMAC tag
	sessionIDLength = 86
)

// ErrInvalidSessionID is returned for IDs this server did not sign.
var ErrInvalidSessionID = errors.New("invalid session id")

// SessionIDs mints and checks session IDs. Each ID is 256 random bits
// followed by an HMAC-SHA256 tag over them, so a client cannot pick an ID
// the server will accept.
type SessionIDs struct {
	key []byte
}

// NewSessionIDs uses key for the HMAC tag. A nil or empty key pulls 32
// bytes from crypto/rand, which invalidates sessions across restarts; set a
// fixed key when sessions live in a shared backend.
func NewSessionIDs(key []byte) (*SessionIDs, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session id key: %w", err)
		}
	}
	return &SessionIDs{key: append([]byte(nil), key...)}, nil
}

// New returns a fresh signed SessionID.
func (s *SessionIDs) New() (SessionID, error) {
	b := make([]byte, sessionIDRandomBytes, sessionIDRandomBytes+sha256.Size)
	if _, err := rand.Read(b); err != nil {
		return NoSessionID, fmt.Errorf("read random bytes: %w", err)
	}
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(b)
	b = mac.Sum(b)
	return SessionID(base64.RawURLEncoding.EncodeToString(b)), nil
}

// Check reports whether id was produced by a SessionIDs with the same key.
func (s *SessionIDs) Check(id SessionID) bool {
	if len(id) != sessionIDLength {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(string(id))
	if err != nil || len(b) != sessionIDRandomBytes+sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(b[:sessionIDRandomBytes])
	return hmac.Equal(mac.Sum(nil), b[sessionIDRandomBytes:])
}
