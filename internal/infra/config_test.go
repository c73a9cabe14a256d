package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		JWTSecret:              "0123456789abcdef0123456789abcdef",
		GatewayWebhookSecret:   "whsec_test",
		RegistrationFee:        "500",
		RedeemCodeValidityDays: 365,
		DBMaxConns:             20,
		DBMinConns:             2,
		OutboxBatchSize:        100,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("insecure jwt secret", func(t *testing.T) {
		c := validConfig()
		c.JWTSecret = insecureSecret
		assert.ErrorContains(t, c.Validate(), "JWT_SECRET")
	})

	t.Run("short jwt secret", func(t *testing.T) {
		c := validConfig()
		c.JWTSecret = "short"
		assert.ErrorContains(t, c.Validate(), "too short")
	})

	t.Run("missing webhook secret", func(t *testing.T) {
		c := validConfig()
		c.GatewayWebhookSecret = ""
		assert.ErrorContains(t, c.Validate(), "GATEWAY_WEBHOOK_SECRET")
	})

	t.Run("insecure allowed in dev", func(t *testing.T) {
		c := validConfig()
		c.JWTSecret = insecureSecret
		c.AllowInsecureDefaults = true
		assert.NoError(t, c.Validate())
	})

	t.Run("pool bounds", func(t *testing.T) {
		c := validConfig()
		c.DBMinConns = 30
		assert.ErrorContains(t, c.Validate(), "DB_MAX_CONNS")
	})

	t.Run("empty outbox batch", func(t *testing.T) {
		c := validConfig()
		c.OutboxBatchSize = 0
		assert.ErrorContains(t, c.Validate(), "OUTBOX_BATCH_SIZE")
	})

	t.Run("bad registration fee", func(t *testing.T) {
		c := validConfig()
		c.RegistrationFee = "-1"
		c.AllowInsecureDefaults = true
		assert.ErrorContains(t, c.Validate(), "REGISTRATION_FEE")
	})
}

func TestConfigDSN(t *testing.T) {
	c := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 5432, PGDatabase: "d"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())
	c.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestPoolConfig(t *testing.T) {
	c := validConfig()
	c.DatabaseURL = "postgres://u:p@db:5432/ledger?sslmode=disable"
	c.DBLockTimeout = 1500 * time.Millisecond

	poolCfg, err := PoolConfig(c)
	require.NoError(t, err)
	assert.Equal(t, int32(20), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)
	assert.Equal(t, "1500", poolCfg.ConnConfig.RuntimeParams["lock_timeout"])
	assert.Equal(t, applicationName, poolCfg.ConnConfig.RuntimeParams["application_name"])

	t.Run("lock timeout disabled", func(t *testing.T) {
		c.DBLockTimeout = 0
		poolCfg, err := PoolConfig(c)
		require.NoError(t, err)
		assert.NotContains(t, poolCfg.ConnConfig.RuntimeParams, "lock_timeout")
	})

	t.Run("application name from dsn wins", func(t *testing.T) {
		c.DatabaseURL = "postgres://u:p@db:5432/ledger?sslmode=disable&application_name=ops"
		poolCfg, err := PoolConfig(c)
		require.NoError(t, err)
		assert.Equal(t, "ops", poolCfg.ConnConfig.RuntimeParams["application_name"])
	})

	t.Run("bad dsn", func(t *testing.T) {
		c.DatabaseURL = "postgres://u:p@db:notaport/ledger"
		_, err := PoolConfig(c)
		assert.ErrorContains(t, err, "parse pool config")
	})
}
