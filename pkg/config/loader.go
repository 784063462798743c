package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/a-essam23/collab-dispatch/pkg/logging"
)

const envPrefix = "COLLAB"

// Flag names understood by Load.
const (
	FlagConfig   = "config"
	FlagAddress  = "address"
	FlagLogLevel = "log-level"
)

// RegisterFlags adds the command line flags that override configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to a YAML config file (default ./config.yaml)")
	fs.String(FlagAddress, "", "listen address, overrides server.address")
	fs.String(FlagLogLevel, "", "debug, info, warn or error; overrides log.level")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "")
	v.SetDefault("server.auth.issuer", "")
	v.SetDefault("server.connectionLimit.maxPerUser", 5)
	v.SetDefault("server.connectionLimit.mode", LimitModeReject)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.shutdownTimeout", "10s")

	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.pingInterval", "25s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("transport.maxMessageBytes", 65536)

	v.SetDefault("rateLimit.window", "60s")
	v.SetDefault("rateLimit.budget", 100)
	v.SetDefault("rateLimit.sweepInterval", "30s")

	v.SetDefault("typing.ttl", "3s")

	v.SetDefault("presence.cacheSize", 4096)
	v.SetDefault("presence.writeTimeout", "5s")

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.mongo.uri", "")
	v.SetDefault("store.mongo.database", "")
	v.SetDefault("store.mongo.operationTimeout", "5s")

	v.SetDefault("log.level", "info")
}

// Load reads configuration from defaults, a YAML file, COLLAB_* environment
// variables and the flags in fs, later sources winning. fs may be nil.
func Load(logger *slog.Logger, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	setDefaults(v)

	// 2. Set config file details
	path := ""
	if fs != nil {
		path, _ = fs.GetString(FlagConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".") // look for config in the working directory
	}

	// 3. Set up environment variable handling
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags only override when set explicitly
	if fs != nil {
		for key, name := range map[string]string{"server.address": FlagAddress, "log.level": FlagLogLevel} {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag '%s': %w", name, err)
				}
			}
		}
	}

	// 5. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	} else {
		logger.Info("Config file loaded", slog.String("path", v.ConfigFileUsed()))
	}

	// 6. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Address != "", "server.address is required")
	check(c.Server.Auth.JWTSecret != "", "server.auth.jwtSecret is required")
	check(c.Server.ConnectionLimit.MaxPerUser >= 0, "server.connectionLimit.maxPerUser must not be negative")
	check(c.Server.ConnectionLimit.Mode == LimitModeReject || c.Server.ConnectionLimit.Mode == LimitModeCycle,
		"server.connectionLimit.mode must be '%s' or '%s', got '%s'", LimitModeReject, LimitModeCycle, c.Server.ConnectionLimit.Mode)
	check(c.Server.ShutdownTimeout > 0, "server.shutdownTimeout must be positive")

	check(c.Transport.ReadTimeout > 0, "transport.readTimeout must be positive")
	check(c.Transport.WriteTimeout > 0, "transport.writeTimeout must be positive")
	check(c.Transport.PingInterval >= 0, "transport.pingInterval must not be negative")
	check(c.Transport.SendBuffer > 0, "transport.sendBuffer must be positive")
	check(c.Transport.MaxMessageBytes > 0, "transport.maxMessageBytes must be positive")

	check(c.RateLimit.Window > 0, "rateLimit.window must be positive")
	check(c.RateLimit.Budget > 0, "rateLimit.budget must be positive")
	check(c.RateLimit.SweepInterval > 0, "rateLimit.sweepInterval must be positive")

	check(c.Typing.TTL > 0, "typing.ttl must be positive")

	check(c.Presence.CacheSize > 0, "presence.cacheSize must be positive")
	check(c.Presence.WriteTimeout > 0, "presence.writeTimeout must be positive")

	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongo:
		check(c.Store.Mongo.URI != "", "store.mongo.uri is required for the mongo driver")
		check(c.Store.Mongo.Database != "", "store.mongo.database is required for the mongo driver")
		check(c.Store.Mongo.OperationTimeout > 0, "store.mongo.operationTimeout must be positive")
	default:
		check(false, "store.driver must be '%s' or '%s', got '%s'", StoreMemory, StoreMongo, c.Store.Driver)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errs
}
