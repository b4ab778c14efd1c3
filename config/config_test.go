package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/config"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
)

func TestDefault(t *testing.T) {
	ctx := config.Default()
	require.NotNil(t, ctx)
	require.Equal(t, network.Bitcoin, ctx.Network)
	require.Equal(t, 30*time.Second, ctx.ServiceTimeout)
	require.Equal(t, 3, ctx.ServiceMaxErrors)
	require.Equal(t, 10, ctx.ServiceRateLimit)
	require.Equal(t, config.DBMemory, ctx.DBType)
	require.Equal(t, 48*time.Hour, ctx.UnconfirmedMaxAge)
	require.Equal(t, logrus.InfoLevel, ctx.Logger.Logger.GetLevel())
	require.NotNil(t, ctx.Rand)
	require.NotEmpty(t, ctx.DataDir)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GOBTC_NETWORK", "testnet")
	t.Setenv("GOBTC_SERVICE_MAX_ERRORS", "5")
	t.Setenv("GOBTC_SERVICE_TIMEOUT", "2s")
	t.Setenv("GOBTC_LOG_LEVEL", "5")

	ctx, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, network.Testnet, ctx.Network)
	require.Equal(t, 5, ctx.ServiceMaxErrors)
	require.Equal(t, 2*time.Second, ctx.ServiceTimeout)
	require.Equal(t, logrus.DebugLevel, ctx.Logger.Logger.GetLevel())
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	datadir := filepath.Join(dir, "data")

	ctx, err := config.Load(
		config.WithValue(config.DatadirKey, datadir),
		config.WithValue(config.DBTypeKey, config.DBBadger),
		config.WithValue(config.NetworkKey, "litecoin"),
	)
	require.NoError(t, err)
	require.Equal(t, network.Litecoin, ctx.Network)
	require.Equal(t, config.DBBadger, ctx.DBType)

	info, err := os.Stat(datadir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"NETWORK":"regtest","SERVICE_RATE_LIMIT":42}`), 0600))

	ctx, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	require.Equal(t, network.Regtest, ctx.Network)
	require.Equal(t, 42, ctx.ServiceRateLimit)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"unknown network", config.NetworkKey, "foocoin"},
		{"unknown db", config.DBTypeKey, "postgres"},
		{"zero max errors", config.ServiceMaxErrorsKey, 0},
		{"zero rate limit", config.ServiceRateLimitKey, 0},
		{"empty datadir", config.DatadirKey, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithValue(tt.key, tt.val))
			require.Error(t, err)
			require.True(t, errors.Is(err, errs.ErrConfig))
		})
	}
}

func TestContextCopies(t *testing.T) {
	ctx := config.Default()
	other := ctx.WithNetwork(network.Testnet)
	require.Equal(t, network.Bitcoin, ctx.Network)
	require.Equal(t, network.Testnet, other.Network)

	entry := logrus.NewEntry(logrus.New()).WithField("wallet", "w")
	logged := ctx.WithLogger(entry)
	require.Equal(t, entry, logged.Logger)
	require.NotEqual(t, entry, ctx.Logger)
}
