package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HistoryLimit       int      `mapstructure:"history_limit" yaml:"history_limit"`
	PageSize           int      `mapstructure:"page_size" yaml:"page_size"`
	MaxPageSize        int      `mapstructure:"max_page_size" yaml:"max_page_size"`
	SessionBuffer      int      `mapstructure:"session_buffer" yaml:"session_buffer"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	OriginPatterns     []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`

	// InviteFallbackMessage posts a callInvite marker message to the channel
	// alongside every call invite.
	InviteFallbackMessage bool `mapstructure:"invite_fallback_message" yaml:"invite_fallback_message"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                  ":8080",
		ReadHeaderTimeout:     5 * time.Second,
		ShutdownTimeout:       5 * time.Second,
		LogLevel:              "info",
		DatabasePath:          "wirecall.db",
		JWTSecret:             "change-me",
		JWTTTL:                7 * 24 * time.Hour,
		MaxMessageBytes:       1 << 20,
		HistoryLimit:          20,
		PageSize:              50,
		MaxPageSize:           200,
		SessionBuffer:         64,
		InviteFallbackMessage: true,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}
