package credential

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// PepperEnvKey is the env var name for the application-wide pepper.
	// #nosec G101 -- not a credential; it's an environment variable name.
	PepperEnvKey = "TB_CREDENTIAL_PEPPER"

	// devPepper is the dev/back-compat fallback used when no pepper is
	// configured. Production deployments must set TB_CREDENTIAL_PEPPER and
	// should enforce it via TB_REQUIRE_CREDENTIAL_PEPPER=true.
	devPepper = "tb_secret_salt_2025"
)

// PBKDF2Params controls PBKDF2-SHA256 derivation cost.
type PBKDF2Params struct {
	Iterations int
	KeyLength  int
}

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params PBKDF2Params
	Policy Policy
}

// DefaultConfig returns the baseline configuration.
// Values are intentionally conservative and can be overridden via env.
func DefaultConfig() Config {
	return Config{
		Params: PBKDF2Params{
			Iterations: 210_000, // interactive-login cost for PBKDF2-SHA256
			KeyLength:  32,
		},
		Policy: Policy{
			MinLength:      6,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - TB_PASSWORD_MIN_LEN
// - TB_PASSWORD_MAX_LEN
// - TB_PASSWORD_REJECT_VERY_WEAK (true/false)
// - TB_PBKDF2_ITERATIONS
// - TB_PBKDF2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("TB_PASSWORD_MIN_LEN"); ok {
		n, err := atoiBounded(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("TB_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("TB_PASSWORD_MAX_LEN"); ok {
		n, err := atoiBounded(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("TB_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("TB_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TB_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if v, ok := os.LookupEnv("TB_PBKDF2_ITERATIONS"); ok {
		n, err := atoiBounded(v, 10_000, 5_000_000)
		if err != nil {
			return Config{}, fmt.Errorf("TB_PBKDF2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = n
	}

	if v, ok := os.LookupEnv("TB_PBKDF2_KEY_LEN"); ok {
		n, err := atoiBounded(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TB_PBKDF2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = n
	}

	// Final sanity.
	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

// PepperFromEnv returns the configured pepper bytes (trimmed), enforcing a
// minimum byte length.
// If the env var is missing/blank -> ErrPepperMissing.
// If too short -> ErrPepperTooShort.
func PepperFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(PepperEnvKey))
	if raw == "" {
		return nil, ErrPepperMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrPepperTooShort
	}
	return b, nil
}

// PepperEnabled reports whether a pepper is configured via env (non-empty after trim).
// Note: This does not enforce minimum length. Use PepperFromEnv for policy checks.
func PepperEnabled() bool {
	return strings.TrimSpace(os.Getenv(PepperEnvKey)) != ""
}

// effectivePepper returns the env pepper, or the dev fallback when unset.
func effectivePepper() []byte {
	if raw := strings.TrimSpace(os.Getenv(PepperEnvKey)); raw != "" {
		return []byte(raw)
	}
	return []byte(devPepper)
}

func atoiBounded(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes", "on", "ON", "On":
		return true, nil
	case "0", "false", "FALSE", "False", "no", "NO", "No", "off", "OFF", "Off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
