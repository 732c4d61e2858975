// FILE: logkeep/src/internal/config/auth.go
package config

import "fmt"

type AuthConfig struct {
	// Authentication type: "none", "basic", "bearer"
	Type string `toml:"type"`

	// Basic auth
	BasicAuth *BasicAuthConfig `toml:"basic_auth"`

	// Bearer token auth
	BearerAuth *BearerAuthConfig `toml:"bearer_auth"`
}

type BasicAuthConfig struct {
	// Static users
	Users []BasicAuthUser `toml:"users"`

	// Realm for WWW-Authenticate header
	Realm string `toml:"realm"`
}

type BasicAuthUser struct {
	Username string `toml:"username"`
	// Password hash (bcrypt)
	PasswordHash string `toml:"password_hash"`
}

type BearerAuthConfig struct {
	// Static tokens
	Tokens []string `toml:"tokens"`

	// JWT validation
	JWT *JWTConfig `toml:"jwt"`
}

type JWTConfig struct {
	// HMAC signing key for HS256/HS384/HS512 tokens
	SigningKey string `toml:"signing_key"`

	// Expected issuer
	Issuer string `toml:"issuer"`

	// Expected audience
	Audience string `toml:"audience"`
}

func validateAuth(auth *AuthConfig) error {
	if auth == nil {
		return nil
	}

	validTypes := map[string]bool{"none": true, "basic": true, "bearer": true}
	if auth.Type != "" && !validTypes[auth.Type] {
		return fmt.Errorf("invalid auth type: %s", auth.Type)
	}

	if auth.Type == "basic" {
		if auth.BasicAuth == nil || len(auth.BasicAuth.Users) == 0 {
			return fmt.Errorf("basic auth type specified but no users configured")
		}
		for i, user := range auth.BasicAuth.Users {
			if user.Username == "" || user.PasswordHash == "" {
				return fmt.Errorf("basic auth user %d: username and password_hash are required", i)
			}
		}
	}

	if auth.Type == "bearer" {
		if auth.BearerAuth == nil {
			return fmt.Errorf("bearer auth type specified but config missing")
		}
		hasTokens := len(auth.BearerAuth.Tokens) > 0
		hasJWT := auth.BearerAuth.JWT != nil && auth.BearerAuth.JWT.SigningKey != ""
		if !hasTokens && !hasJWT {
			return fmt.Errorf("bearer auth requires static tokens or a JWT signing key")
		}
	}

	return nil
}
