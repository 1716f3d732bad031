package app

import (
	"errors"

	"trustbridge/cmd/security/credential"
	"trustbridge/cmd/security/token"
)

// ValidateSecurityConfig enforces TrustBridge's security policy at startup.
//
// Fail-fast is intentional: silently falling back to weaker crypto in
// production is unacceptable. Enforcement validates the same modules
// that perform the hashing (security/token, security/credential).
func ValidateSecurityConfig(cfg Config) error {
	if cfg.RequireTokenHMAC {
		// Minimum 32 bytes for an HMAC-SHA256 secret, measured as raw bytes.
		if _, err := token.HMACKeyFromEnv(32); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: TB_REQUIRE_TOKEN_HMAC=true but TB_TOKEN_HMAC_KEY is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return errors.New("security policy: TB_REQUIRE_TOKEN_HMAC=true but TB_TOKEN_HMAC_KEY is too short (min 32 bytes)")
			default:
				return err
			}
		}
		// Guards against future changes reintroducing a SHA fallback under policy.
		if !token.HMACEnabled() {
			return errors.New("security policy: TB_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
		}
	}

	if cfg.RequireCredentialPepper {
		if _, err := credential.PepperFromEnv(16); err != nil {
			switch {
			case errors.Is(err, credential.ErrPepperMissing):
				return errors.New("security policy: TB_REQUIRE_CREDENTIAL_PEPPER=true but TB_CREDENTIAL_PEPPER is missing")
			case errors.Is(err, credential.ErrPepperTooShort):
				return errors.New("security policy: TB_REQUIRE_CREDENTIAL_PEPPER=true but TB_CREDENTIAL_PEPPER is too short (min 16 bytes)")
			default:
				return err
			}
		}
	}

	return nil
}
