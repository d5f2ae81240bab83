package auth

import (
	"testing"
	"time"

	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager(testSecret, "kenyabank", "kenyabank-api", 30*time.Minute)
	user := &models.User{ID: uuid.New(), Role: "customer"}

	tok, err := m.Issue(user)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)

	claims, err := m.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := NewTokenManager(testSecret, "kenyabank", "kenyabank-api", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := m.Issue(&models.User{ID: uuid.New(), Role: "customer"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsWrongAudienceAndSecret(t *testing.T) {
	issuer := NewTokenManager(testSecret, "kenyabank", "other-api", time.Minute)
	tok, err := issuer.Issue(&models.User{ID: uuid.New(), Role: "admin"})
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, "kenyabank", "kenyabank-api", time.Minute).Parse(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("ffffffffffffffffffffffffffffffff", "kenyabank", "other-api", time.Minute).Parse(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsNoneAlg(t *testing.T) {
	m := NewTokenManager(testSecret, "", "", time.Minute)
	claims := Claims{UserID: uuid.NewString(), Role: "admin"}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
