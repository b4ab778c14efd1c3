// Package config builds the Context threaded through wallets, stores and
// chain services in place of process-wide settings.
package config

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
)

const (
	// NetworkKey is the name of the default network.
	NetworkKey = "NETWORK"
	// DatadirKey is the directory where persistent stores live.
	DatadirKey = "DATADIR"
	// LogLevelKey is the logrus level. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ServiceTimeoutKey is the timeout of a single chain service call.
	ServiceTimeoutKey = "SERVICE_TIMEOUT"
	// ServiceMaxErrorsKey is the number of provider failures after which a
	// chain call gives up.
	ServiceMaxErrorsKey = "SERVICE_MAX_ERRORS"
	// ServiceRateLimitKey is the max number of requests per second sent to
	// each chain provider.
	ServiceRateLimitKey = "SERVICE_RATE_LIMIT"
	// DBTypeKey selects the wallet store backend.
	DBTypeKey = "DB_TYPE"
	// UnconfirmedMaxAgeKey is the age after which unconfirmed transactions
	// are purged.
	UnconfirmedMaxAgeKey = "UNCONFIRMED_MAX_AGE"

	// DBMemory keeps wallets in memory.
	DBMemory = "memory"
	// DBBadger persists wallets in a badger database under the datadir.
	DBBadger = "badger"

	envPrefix = "GOBTC"
)

var defaultDatadir = btcutil.AppDataDir("go-bitcoin", false)

// Context carries the settings shared by wallets and services.
type Context struct {
	Network           *network.Network
	DataDir           string
	Logger            *log.Entry
	ServiceTimeout    time.Duration
	ServiceMaxErrors  int
	ServiceRateLimit  int
	DBType            string
	UnconfirmedMaxAge time.Duration
	// Rand is the source of randomness for key generation and output
	// shuffling. It must be a CSPRNG outside of tests.
	Rand io.Reader
}

// Option customizes Load.
type Option func(v *viper.Viper)

// WithConfigFile makes Load read the given file before the environment.
func WithConfigFile(path string) Option {
	return func(v *viper.Viper) {
		v.SetConfigFile(path)
	}
}

// WithValue overrides a key.
func WithValue(key string, value interface{}) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Default returns a Context with the default settings, without reading the
// environment.
func Default() *Context {
	ctx, _ := fromViper(newViper())
	return ctx
}

// Load returns a Context from the environment (GOBTC_ prefixed variables),
// an optional config file and the given overrides.
func Load(opts ...Option) (*Context, error) {
	const op = "config.Load"

	vip := newViper()
	vip.SetEnvPrefix(envPrefix)
	vip.AutomaticEnv()
	for _, opt := range opts {
		opt(vip)
	}
	if vip.ConfigFileUsed() != "" {
		if err := vip.ReadInConfig(); err != nil {
			return nil, errs.New(errs.ErrConfig, op, err)
		}
	}

	ctx, err := fromViper(vip)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err)
	}
	if ctx.DBType == DBBadger {
		if err := makeDirectoryIfNotExists(ctx.DataDir); err != nil {
			return nil, errs.New(errs.ErrConfig, op, fmt.Errorf(
				"error while creating datadir: %s", err,
			))
		}
	}
	return ctx, nil
}

// WithNetwork returns a copy of the context using net as default network.
func (c *Context) WithNetwork(net *network.Network) *Context {
	cc := *c
	cc.Network = net
	return &cc
}

// WithLogger returns a copy of the context logging to logger.
func (c *Context) WithLogger(logger *log.Entry) *Context {
	cc := *c
	cc.Logger = logger
	return &cc
}

func newViper() *viper.Viper {
	vip := viper.New()
	vip.SetDefault(NetworkKey, network.Bitcoin.Name)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, int(log.InfoLevel))
	vip.SetDefault(ServiceTimeoutKey, 30*time.Second)
	vip.SetDefault(ServiceMaxErrorsKey, 3)
	vip.SetDefault(ServiceRateLimitKey, 10)
	vip.SetDefault(DBTypeKey, DBMemory)
	vip.SetDefault(UnconfirmedMaxAgeKey, 48*time.Hour)
	return vip
}

func fromViper(vip *viper.Viper) (*Context, error) {
	net, err := network.ByName(vip.GetString(NetworkKey))
	if err != nil {
		return nil, err
	}

	datadir := vip.GetString(DatadirKey)
	if len(datadir) <= 0 {
		return nil, fmt.Errorf("missing datadir")
	}

	dbType := strings.ToLower(vip.GetString(DBTypeKey))
	if dbType != DBMemory && dbType != DBBadger {
		return nil, fmt.Errorf("unknown db type %q", dbType)
	}

	maxErrors := vip.GetInt(ServiceMaxErrorsKey)
	if maxErrors <= 0 {
		return nil, fmt.Errorf("%s must be greater than 0", ServiceMaxErrorsKey)
	}
	rateLimit := vip.GetInt(ServiceRateLimitKey)
	if rateLimit <= 0 {
		return nil, fmt.Errorf("%s must be greater than 0", ServiceRateLimitKey)
	}
	timeout := vip.GetDuration(ServiceTimeoutKey)
	if timeout <= 0 {
		return nil, fmt.Errorf("%s must be a positive duration", ServiceTimeoutKey)
	}

	logger := log.New()
	logger.SetLevel(log.Level(vip.GetInt(LogLevelKey)))

	return &Context{
		Network:           net,
		DataDir:           datadir,
		Logger:            log.NewEntry(logger),
		ServiceTimeout:    timeout,
		ServiceMaxErrors:  maxErrors,
		ServiceRateLimit:  rateLimit,
		DBType:            dbType,
		UnconfirmedMaxAge: vip.GetDuration(UnconfirmedMaxAgeKey),
		Rand:              rand.Reader,
	}, nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
