package credential

import "testing"

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Policy.MinLength != 6 {
		t.Fatalf("default MinLength=%d, want 6", cfg.Policy.MinLength)
	}
	if cfg.Params.Iterations != 210_000 {
		t.Fatalf("default Iterations=%d, want 210000", cfg.Params.Iterations)
	}
	if cfg.Params.KeyLength != 32 {
		t.Fatalf("default KeyLength=%d, want 32", cfg.Params.KeyLength)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TB_PASSWORD_MIN_LEN", "10")
	t.Setenv("TB_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("TB_PBKDF2_ITERATIONS", "50000")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Policy.MinLength != 10 {
		t.Fatalf("MinLength=%d, want 10", cfg.Policy.MinLength)
	}
	if !cfg.Policy.RejectVeryWeak {
		t.Fatalf("RejectVeryWeak not applied")
	}
	if cfg.Params.Iterations != 50_000 {
		t.Fatalf("Iterations=%d, want 50000", cfg.Params.Iterations)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "min not integer", key: "TB_PASSWORD_MIN_LEN", val: "abc"},
		{name: "min out of range", key: "TB_PASSWORD_MIN_LEN", val: "0"},
		{name: "iterations too low", key: "TB_PBKDF2_ITERATIONS", val: "100"},
		{name: "weak flag invalid", key: "TB_PASSWORD_REJECT_VERY_WEAK", val: "maybe"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestFromEnv_MinGreaterThanMax(t *testing.T) {
	t.Setenv("TB_PASSWORD_MIN_LEN", "64")
	t.Setenv("TB_PASSWORD_MAX_LEN", "32")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected min>max to fail")
	}
}

func TestPepperFromEnv(t *testing.T) {
	t.Setenv(PepperEnvKey, "")
	if _, err := PepperFromEnv(32); err != ErrPepperMissing {
		t.Fatalf("expected ErrPepperMissing, got %v", err)
	}

	t.Setenv(PepperEnvKey, "short")
	if _, err := PepperFromEnv(32); err != ErrPepperTooShort {
		t.Fatalf("expected ErrPepperTooShort, got %v", err)
	}

	t.Setenv(PepperEnvKey, "a-sufficiently-long-pepper-value-123456")
	b, err := PepperFromEnv(32)
	if err != nil {
		t.Fatalf("PepperFromEnv error: %v", err)
	}
	if len(b) < 32 {
		t.Fatalf("pepper shorter than requested minimum")
	}
}
