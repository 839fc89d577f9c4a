package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/marketplace-orders/internal/config"
)

func setSecrets(t *testing.T) {
	t.Setenv("JWT_CUSTOMER_SECRET", "c")
	t.Setenv("JWT_VENDOR_SECRET", "v")
	t.Setenv("JWT_ADMIN_SECRET", "a")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":7000"
store_driver: memory
event_broker: log
checkout_timeout: 3s
kafka_brokers: ["a:9092"]
`), 0o600))

	setSecrets(t)
	t.Setenv("HTTP_ADDR", ":7001")
	t.Setenv("KAFKA_ADDR", "b:9092, c:9092")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.HTTPAddr)
	assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
	assert.Equal(t, config.BrokerLog, cfg.EventBroker)
	assert.Equal(t, 3*time.Second, cfg.CheckoutTimeout)
	assert.Equal(t, []string{"b:9092", "c:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	setSecrets(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("JWT_CUSTOMER_SECRET", "c")
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "JWT_VENDOR_SECRET")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoad_BadDuration(t *testing.T) {
	setSecrets(t)
	t.Setenv("CHECKOUT_TIMEOUT", "soon")
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
