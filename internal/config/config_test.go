package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Config{
		Addr:            ":8080",
		DBPath:          "moltblox.db",
		LogLevel:        "info",
		CleanupInterval: time.Minute,
		SessionMaxAge:   time.Hour,
		MaxCPUSteps:     64,
	}, cfg)
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/legacy.db")
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/tmp/legacy.db", cfg.DBPath)

	t.Setenv("MOLTBLOX_DB_PATH", "/tmp/new.db")
	cfg, err = Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/new.db", cfg.DBPath, "prefixed name wins")
}

func TestPrecedence(t *testing.T) {
	file := writeFile(t, "moltblox.yaml", `
addr: ":7000"
logLevel: debug
cleanupInterval: 30s
maxCpuSteps: 8
`)
	t.Setenv("MOLTBLOX_LOG_LEVEL", "WARN")
	t.Setenv("MOLTBLOX_MAX_CPU_STEPS", "16")

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	require.NoError(t, flags.Parse([]string{"--addr", ":6000"}))
	require.NoError(t, v.BindPFlag("addr", flags.Lookup("addr")))

	cfg, err := Load(v, file)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Addr, "flag beats file")
	assert.Equal(t, "warn", cfg.LogLevel, "env beats file")
	assert.Equal(t, 16, cfg.MaxCPUSteps)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval, "file beats default")
	assert.Equal(t, time.Hour, cfg.SessionMaxAge)
}

func TestInvalid(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("MOLTBLOX_LOG_LEVEL", "loud")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "invalid config")

	t.Setenv("MOLTBLOX_LOG_LEVEL", "info")
	t.Setenv("MOLTBLOX_MAX_CPU_STEPS", "0")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "MaxCPUSteps")
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "MOLTBLOX_TEST_DOTENV=from-file\n")
	t.Setenv("MOLTBLOX_TEST_DOTENV", "")
	os.Unsetenv("MOLTBLOX_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("MOLTBLOX_TEST_DOTENV"))
}
