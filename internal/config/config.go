package config

import "time"

// Config holds wirecall configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`

	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
	// LiveKitIdentity is the participant identity of this phone in call rooms.
	LiveKitIdentity string `mapstructure:"livekit_identity" yaml:"livekit_identity"`

	// AuxViews are the render targets the bridge hands out when aux streams become available.
	AuxViews []string `mapstructure:"aux_views" yaml:"aux_views"`
	// VideoLicenseActivated starts the phone with the video license already accepted.
	VideoLicenseActivated bool `mapstructure:"video_license_activated" yaml:"video_license_activated"`
	// EventBuffer is the per-websocket-client event queue size.
	EventBuffer int `mapstructure:"event_buffer" yaml:"event_buffer"`
	// WSRateLimit caps inbound websocket messages per client per minute; 0 disables it.
	WSRateLimit int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "wirecall.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "wirecall",
		JWTAudience:       "wirecall-bridge",
		JWTTTL:            24 * time.Hour,
		AuxViews:          []string{"aux-1", "aux-2", "aux-3", "aux-4"},
		EventBuffer:       64,
		WSRateLimit:       60,
	}
}

// LiveKitEnabled reports whether LiveKit join tokens can be issued.
func (c *Config) LiveKitEnabled() bool {
	return c.LiveKitURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans can only be switched on.
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
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.LiveKitURL != "" {
		c.LiveKitURL = other.LiveKitURL
	}
	if other.LiveKitAPIKey != "" {
		c.LiveKitAPIKey = other.LiveKitAPIKey
	}
	if other.LiveKitAPISecret != "" {
		c.LiveKitAPISecret = other.LiveKitAPISecret
	}
	if other.LiveKitIdentity != "" {
		c.LiveKitIdentity = other.LiveKitIdentity
	}
	if len(other.AuxViews) > 0 {
		c.AuxViews = append([]string(nil), other.AuxViews...)
	}
	if other.VideoLicenseActivated {
		c.VideoLicenseActivated = true
	}
	if other.EventBuffer != 0 {
		c.EventBuffer = other.EventBuffer
	}
	if other.WSRateLimit != 0 {
		c.WSRateLimit = other.WSRateLimit
	}
}
