package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Typing    TypingConfig
	Presence  PresenceConfig
	Store     StoreConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
	AllowedOrigins  []string              `mapstructure:"allowedOrigins"` // host patterns; empty means same-origin only
	ShutdownTimeout time.Duration         `mapstructure:"shutdownTimeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
	Issuer    string `mapstructure:"issuer"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

// TransportConfig mirrors transport.ConnectionConfig field for field.
type TransportConfig struct {
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	PingInterval    time.Duration `mapstructure:"pingInterval"`
	SendBuffer      int           `mapstructure:"sendBuffer"`
	MaxMessageBytes int64         `mapstructure:"maxMessageBytes"`
}

type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	Budget        int           `mapstructure:"budget"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type TypingConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type PresenceConfig struct {
	CacheSize    int           `mapstructure:"cacheSize"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "mongo"
	Mongo  MongoConfig
}

type MongoConfig struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	OperationTimeout time.Duration `mapstructure:"operationTimeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	LimitModeReject = "reject"
	LimitModeCycle  = "cycle"

	StoreMemory = "memory"
	StoreMongo  = "mongo"
)
