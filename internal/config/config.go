package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// HistoryPageSize is the default page size for history reads;
	// HistoryMaxPageSize caps client-supplied limits.
	HistoryPageSize    int `mapstructure:"history_page_size" yaml:"history_page_size"`
	HistoryMaxPageSize int `mapstructure:"history_max_page_size" yaml:"history_max_page_size"`

	// MessageRateLimit caps inbound frames per connection per minute.
	// Zero disables the limit.
	MessageRateLimit int `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`

	// JWTSecret enables token validation on the REST and realtime endpoints
	// when non-empty. Token issuance stays with an external identity
	// provider.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "roomcast.db",
		LogLevel:           "info",
		HistoryPageSize:    50,
		HistoryMaxPageSize: 200,
		MessageRateLimit:   0,
	}
}
