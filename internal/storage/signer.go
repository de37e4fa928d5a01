package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Signer produces keyed hashes for download links.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer for secret, which must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("storage: signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex HMAC-SHA256 of parts joined with ":".
func (s *Signer) Sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against parts in constant time.
func (s *Signer) Verify(sig string, parts ...string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(parts, ":")))
	return hmac.Equal(want, mac.Sum(nil))
}

// DocumentToken is the token a user presents to download a document's
// version PDFs.
func (s *Signer) DocumentToken(documentID, userID string) string {
	return s.Sign(documentID, userID)
}
