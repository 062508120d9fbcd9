package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Faculty.ValidationEnabled)
	assert.Equal(t, []string{"futo.edu.ng"}, cfg.Faculty.AllowedDomains)
	assert.True(t, cfg.Lifecycle.CleanupEnabled)
	assert.False(t, cfg.Lifecycle.NotifyEnabled)
	assert.Equal(t, 1, cfg.Lifecycle.WarningLeadYears)
	assert.Equal(t, 6, cfg.Lifecycle.DeleteGraceMonths)
	assert.Equal(t, "0 0 2 * * *", cfg.Lifecycle.ExpireCron)
	assert.Equal(t, "user-events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FACULTY_EMAIL_ALLOWED_DOMAINS", "futo.edu.ng,sict.futo.edu.ng")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("LIFECYCLE_NOTIFY_ENABLED", "true")
	t.Setenv("LIFECYCLE_WARNING_LEAD_YEARS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"futo.edu.ng", "sict.futo.edu.ng"}, cfg.Faculty.AllowedDomains)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Lifecycle.NotifyEnabled)
	assert.Equal(t, 2, cfg.Lifecycle.WarningLeadYears)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("SERVER_ADDR=:9999\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("SERVER_ADDR", ":7070")
	// godotenv.Load sets variables outside t.Setenv; clean up by hand.
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("LIFECYCLE_DELETE_GRACE_MONTHS", "0")
	t.Setenv("LIFECYCLE_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIFECYCLE_DELETE_GRACE_MONTHS")
	assert.Contains(t, err.Error(), "Mars/Olympus")
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))
}
