package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Engine knobs.
	SendQueueSize  int
	LivenessWindow time.Duration
	SweepInterval  time.Duration

	// Token verification.
	TokenHMACKey string
	TokenSchema  string
	// Dev fallback when no DB is configured: "token=user,token2=user2".
	StaticTokens string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("RIPPLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("RIPPLE_LOG_LEVEL", "info"),
		LogFormat: EnvString("RIPPLE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("RIPPLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		// Long polls hold the response open; the write timeout must exceed the
		// poll ceiling or every poll would be cut off mid-wait.
		ReadTimeout:  EnvDuration("RIPPLE_HTTP_READ_TIMEOUT", 35*time.Second),
		WriteTimeout: EnvDuration("RIPPLE_HTTP_WRITE_TIMEOUT", 35*time.Second),
		IdleTimeout:  EnvDuration("RIPPLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("RIPPLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RIPPLE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("RIPPLE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RIPPLE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("RIPPLE_READINESS_REQUIRE_DB", false),

		SendQueueSize:  EnvInt("RIPPLE_SEND_QUEUE", 256),
		LivenessWindow: EnvDuration("RIPPLE_LIVENESS_WINDOW", 60*time.Second),
		SweepInterval:  EnvDuration("RIPPLE_SWEEP_INTERVAL", 30*time.Second),

		TokenHMACKey: EnvString("RIPPLE_TOKEN_HMAC_KEY", ""),
		TokenSchema:  EnvString("RIPPLE_TOKEN_SCHEMA", "ripple"),
		StaticTokens: EnvString("RIPPLE_STATIC_TOKENS", ""),
	}
}
