package security

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword_HashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)
	assert.True(t, CheckPassword(hash, "correct-horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "correct-horse"))
}

func TestSigner_TransactionRoundTrip(t *testing.T) {
	s := NewSigner("signing-key")
	id := uuid.New()

	sig := s.SignTransaction(id, "KB0000000001", "KB0000000002", 1500, 1700000000)
	assert.Len(t, sig, 64)
	assert.True(t, s.VerifyTransaction(id, "KB0000000001", "KB0000000002", 1500, 1700000000, sig))
	assert.False(t, s.VerifyTransaction(id, "KB0000000001", "KB0000000002", 1501, 1700000000, sig))
	assert.False(t, NewSigner("other-key").VerifyTransaction(id, "KB0000000001", "KB0000000002", 1500, 1700000000, sig))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "2547*****678", MaskPhone("254712345678"))
	assert.Equal(t, "****", MaskPhone("1234"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"email":    "a@b.c",
		"Password": "secret",
		"nested":   map[string]any{"access_token": "abc", "amount": 10},
	})
	assert.Equal(t, "a@b.c", out["email"])
	assert.Equal(t, "***", out["Password"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "***", nested["access_token"])
	assert.Equal(t, 10, nested["amount"])
}
