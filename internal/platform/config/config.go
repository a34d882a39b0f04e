// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. An optional env file
named by ENV_FILE is preloaded with 'joho/godotenv' for local development.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, token service) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Configuration Schema

// Config holds all runtime configuration for the identity API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing
	JWTAccessSecret      string `env:"JWT_ACCESS_SECRET,required"`
	JWTRefreshSecret     string `env:"JWT_REFRESH_SECRET,required"`
	JWTAlgorithm         string `env:"JWT_ALGORITHM"            envDefault:"HS256"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES"   envDefault:"10"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES"  envDefault:"10080"`
	RefreshTokenStrategy string `env:"REFRESH_TOKEN_STRATEGY"   envDefault:"opaque"`

	// Field encryption & hashing
	AESEncryptKey  string `env:"AES_ENCRYPT_KEY,required"`
	BlindIndexKey  string `env:"BLIND_INDEX_KEY,required"`
	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost     int    `env:"BCRYPT_COST"     envDefault:"10"`

	// Cookies & Cross-Origin Resource Sharing
	CookieSameSite string   `env:"COOKIE_SAMESITE" envDefault:"lax"`
	CookieDomain   string   `env:"COOKIE_DOMAIN"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Abuse protection
	LoginMaxAttempts    int     `env:"LOGIN_MAX_ATTEMPTS"    envDefault:"5"`
	LoginLockoutMinutes int     `env:"LOGIN_LOCKOUT_MINUTES" envDefault:"15"`
	RateLimitRPS        float64 `env:"RATE_LIMIT_RPS"        envDefault:"20"`
	RateLimitBurst      int     `env:"RATE_LIMIT_BURST"      envDefault:"40"`

	// Admin bootstrap (skipped when email or password is empty)
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminMobile   string `env:"ADMIN_MOBILE"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
//
// When ENV_FILE is set, that file is loaded first without overriding
// variables already present in the process environment.
func Load() (*Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: failed to load env file %s: %w", path, err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom parses configuration from an explicit variable map instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// # Validation

// Validate rejects combinations the token and crypto layers cannot serve.
func (c *Config) Validate() error {
	var errs []error

	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be an HMAC algorithm, got %q", c.JWTAlgorithm))
	}

	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLMinutes <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL_MINUTES and JWT_REFRESH_TTL_MINUTES must be positive"))
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}

	switch c.RefreshTokenStrategy {
	case "opaque", "jwt":
	default:
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_STRATEGY must be opaque or jwt, got %q", c.RefreshTokenStrategy))
	}

	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher))
	}

	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite))
	}

	if c.LoginMaxAttempts <= 0 || c.LoginLockoutMinutes <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS and LOGIN_LOCKOUT_MINUTES must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// # Derived Values

// AccessTTL is the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// RefreshTTL is the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}

// LoginLockout is the window during which failed logins are counted.
func (c *Config) LoginLockout() time.Duration {
	return time.Duration(c.LoginLockoutMinutes) * time.Minute
}

// AdminBootstrapEnabled reports whether an admin account should be ensured at startup.
func (c *Config) AdminBootstrapEnabled() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
