package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TRANSACTION_SIGNING_KEY", "signing-key")
	t.Setenv("MPESA_MOCK", "true")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Mpesa.Timeout)
	assert.Equal(t, "5-15m", cfg.LoginRateLimit)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, int64(1_000_00), cfg.WelcomeBonus)
	assert.Equal(t, 2160*time.Hour, cfg.RetentionPeriod)
	assert.Equal(t, 10*time.Minute, cfg.PendingMaxAge)
	assert.True(t, cfg.MpesaMock)
}

func TestLoadPrefixedAliases(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KENYABANK_PORT", "9090")
	t.Setenv("KENYABANK_WELCOME_BONUS", "250.50")
	t.Setenv("CORS_ORIGINS", "https://app.kenyabank.co.ke, https://admin.kenyabank.co.ke")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, int64(250_50), cfg.WelcomeBonus)
	assert.Equal(t, []string{"https://app.kenyabank.co.ke", "https://admin.kenyabank.co.ke"}, cfg.CORSOrigins)
}

func TestLoadValidation(t *testing.T) {
	t.Run("short jwt secret", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("JWT_SECRET", "short")
		_, err := Load()
		require.ErrorContains(t, err, "JWT_SECRET")
	})
	t.Run("bad duration", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("ACCOUNT_LOCKOUT", "soon")
		_, err := Load()
		require.ErrorContains(t, err, "ACCOUNT_LOCKOUT")
	})
	t.Run("missing signing key", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("TRANSACTION_SIGNING_KEY", "")
		_, err := Load()
		require.ErrorContains(t, err, "TRANSACTION_SIGNING_KEY")
	})
	t.Run("real provider needs credentials", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("MPESA_MOCK", "false")
		t.Setenv("MPESA_CONSUMER_KEY", "key")
		_, err := Load()
		require.ErrorContains(t, err, "MPESA_PASSKEY")
		assert.NotContains(t, err.Error(), "MPESA_CONSUMER_KEY")
	})
}
