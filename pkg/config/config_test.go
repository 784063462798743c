package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/a-essam23/collab-dispatch/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaults(t *testing.T) {
	t.Setenv("COLLAB_SERVER_AUTH_JWTSECRET", "s3cret")

	cfg, err := config.Load(quietLogger(), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "s3cret", cfg.Server.Auth.JWTSecret)
	assert.Equal(t, 5, cfg.Server.ConnectionLimit.MaxPerUser)
	assert.Equal(t, config.LimitModeReject, cfg.Server.ConnectionLimit.Mode)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 25*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.Equal(t, int64(65536), cfg.Transport.MaxMessageBytes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.Budget)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.SweepInterval)
	assert.Equal(t, 3*time.Second, cfg.Typing.TTL)
	assert.Equal(t, 4096, cfg.Presence.CacheSize)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFileEnvAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
  auth:
    jwtSecret: from-file
  connectionLimit:
    mode: cycle
  allowedOrigins: ["app.example.com"]
rateLimit:
  budget: 20
typing:
  ttl: 5s
store:
  driver: mongo
  mongo:
    uri: mongodb://localhost:27017
    database: collab
`), 0o600))

	t.Setenv("COLLAB_RATELIMIT_BUDGET", "30")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "debug"}))

	cfg, err := config.Load(quietLogger(), fs)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address, "unset flags do not override the file")
	assert.Equal(t, "from-file", cfg.Server.Auth.JWTSecret)
	assert.Equal(t, config.LimitModeCycle, cfg.Server.ConnectionLimit.Mode)
	assert.Equal(t, []string{"app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateLimit.Budget, "env beats file")
	assert.Equal(t, 5*time.Second, cfg.Typing.TTL)
	assert.Equal(t, "debug", cfg.Log.Level, "flag beats everything")
	assert.Equal(t, "collab", cfg.Store.Mongo.Database)
}

func TestMissingExplicitFileFails(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))

	_, err := config.Load(quietLogger(), fs)
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Address = ":8080"
	cfg.Server.ConnectionLimit.Mode = "drop"
	cfg.Store.Driver = config.StoreMongo
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Greater(t, len(errs), 10)
	assert.ErrorContains(t, err, "server.auth.jwtSecret is required")
	assert.ErrorContains(t, err, "server.connectionLimit.mode")
	assert.ErrorContains(t, err, "store.mongo.uri is required")
	assert.ErrorContains(t, err, "unknown log level 'loud'")
}
