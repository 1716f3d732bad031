package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" (default) or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// CORS policy for browser clients. Empty origins list means
	// cross-origin requests from any origin are accepted (the service's
	// historical default).
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Security policy:
	// If true, TB_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session-token hashing must be HMAC-based.
	RequireTokenHMAC bool
	// If true, TB_CREDENTIAL_PEPPER MUST be set (>= 16 bytes); the dev fallback pepper is refused.
	RequireCredentialPepper bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("TB_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("TB_LOG_LEVEL", "info"),
		LogFormat: EnvString("TB_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("TB_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TB_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TB_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TB_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TB_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TB_DATABASE_URL", ""),
		DBSchema:    EnvString("TB_DB_SCHEMA", "trustbridge"),
		DBMaxConns:  EnvInt32("TB_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TB_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("TB_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvStringSlice("TB_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("TB_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TB_CORS_MAX_AGE_SECONDS", 600),

		RequireTokenHMAC:        EnvBool("TB_REQUIRE_TOKEN_HMAC", false),
		RequireCredentialPepper: EnvBool("TB_REQUIRE_CREDENTIAL_PEPPER", false),
	}
}
