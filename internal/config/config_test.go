package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, "deferred", cfg.Payments.Policy)
	require.Equal(t, "0.10", cfg.Payments.CommissionRate)
	require.Equal(t, 2*time.Second, cfg.Payments.SettlementDelay)
	require.Equal(t, 3*time.Second, cfg.Payments.WithdrawalDelay)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, "0166344282", cfg.Payments.MerchantNumbers["mtn"])
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PAYMENT_POLICY", "verification")
	t.Setenv("PAYMENT_VERIFICATION_CODES", "1111,2222")
	t.Setenv("ADMIN_PHONES", "0100000000,0200000000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "verification", cfg.Payments.Policy)
	require.Equal(t, []string{"1111", "2222"}, cfg.Payments.VerificationCodes)
	require.Len(t, cfg.Auth.AdminPhones, 2)
}
