package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseAPIKeys(t *testing.T) {
	keys := parseAPIKeys(" Admin:ABC123 , staff:def456,broken, :nohash")

	assert.Equal(t, map[string]string{
		"abc123": "admin",
		"def456": "staff",
	}, keys)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 15*time.Minute, cfg.LedgerReconcileInterval)
}

func TestLoadReconcileInterval(t *testing.T) {
	t.Setenv("LEDGER_RECONCILE_INTERVAL", "0s")
	assert.Zero(t, Load().LedgerReconcileInterval)

	t.Setenv("LEDGER_RECONCILE_INTERVAL", "garbage")
	assert.Equal(t, 15*time.Minute, Load().LedgerReconcileInterval)
}

func TestStoreConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  billPrefix: AUR\n  currency: INR\n  defaultGstPercentage: 3\n  ledgerMaxRetries: 7\n"), 0o600))

	holder, err := NewStoreConfigHolder(Config{StoreConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "AUR", cfg.BillPrefix)
	assert.Equal(t, 7, cfg.LedgerMaxRetries)
}

func TestValidateStoreConfig(t *testing.T) {
	assert.NoError(t, validateStoreConfig(DefaultStoreConfig()))

	bad := DefaultStoreConfig()
	bad.LedgerMaxRetries = 0
	assert.Error(t, validateStoreConfig(bad))
}
