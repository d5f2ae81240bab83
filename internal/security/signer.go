package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Signer produces HMAC-SHA256 signatures over transaction records.
type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: []byte(secretKey)}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}

func transactionPayload(id uuid.UUID, from, to string, amount int64, unix int64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%d:%d", id, from, to, amount, unix))
}

// SignTransaction signs the immutable fields of a transfer.
func (s *Signer) SignTransaction(id uuid.UUID, from, to string, amount int64, unix int64) string {
	return s.Sign(transactionPayload(id, from, to, amount, unix))
}

func (s *Signer) VerifyTransaction(id uuid.UUID, from, to string, amount int64, unix int64, signature string) bool {
	return s.Verify(transactionPayload(id, from, to, amount, unix), signature)
}
