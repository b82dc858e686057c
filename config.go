package sessionkit

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines the tunable behavior of the session core. Zero values are
// filled from defaultConfig at Build time; Validate rejects combinations the
// engine cannot honor.
type Config struct {
	API       APIConfig
	Challenge ChallengeConfig
	SignOut   SignOutConfig
	Recovery  RecoveryConfig
	Storage   StorageConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// APIConfig locates the identity service.
type APIConfig struct {
	BaseURL   string        `env:"SESSIONKIT_API_URL"`
	Timeout   time.Duration `env:"SESSIONKIT_API_TIMEOUT" envDefault:"10s"`
	UserAgent string        `env:"SESSIONKIT_USER_AGENT" envDefault:"sessionkit"`
}

// ChallengeConfig bounds second-factor verification.
type ChallengeConfig struct {
	// MaxAttempts caps failed TOTP/backup submissions per challenge. The
	// identity service imposes no cap of its own, so the client enforces one.
	MaxAttempts int `env:"SESSIONKIT_CHALLENGE_MAX_ATTEMPTS" envDefault:"5"`
	// TOTPDigits is the expected code length for the time-based method.
	TOTPDigits int `env:"SESSIONKIT_TOTP_DIGITS" envDefault:"6"`
	// BackupCodeLength is the expected length of a backup code after
	// uppercasing.
	BackupCodeLength int `env:"SESSIONKIT_BACKUP_CODE_LENGTH" envDefault:"10"`
}

// SignOutConfig controls the destructive-action gate.
type SignOutConfig struct {
	// RequireSecondFactor gates sign-out behind a fresh challenge. When the
	// service reports no available method for the session, sign-out completes
	// immediately regardless of this flag.
	RequireSecondFactor bool `env:"SESSIONKIT_SIGNOUT_REQUIRE_2FA" envDefault:"true"`
}

// RecoveryConfig controls the startup auto-login chain.
type RecoveryConfig struct {
	// EnableLegacyCredentialReplay keeps the deprecated raw-credential
	// fallback alive for installs migrated from the old client. The key is
	// only ever read and cleared here, never written.
	EnableLegacyCredentialReplay bool `env:"SESSIONKIT_LEGACY_REPLAY" envDefault:"true"`
}

// StorageConfig names the durable key namespace.
type StorageConfig struct {
	KeyPrefix string `env:"SESSIONKIT_KEY_PREFIX" envDefault:"smc"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"SESSIONKIT_AUDIT_ENABLED" envDefault:"true"`
	BufferSize int  `env:"SESSIONKIT_AUDIT_BUFFER" envDefault:"256"`
	DropIfFull bool `env:"SESSIONKIT_AUDIT_DROP_IF_FULL" envDefault:"true"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool `env:"SESSIONKIT_METRICS_ENABLED" envDefault:"true"`
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout:   10 * time.Second,
			UserAgent: "sessionkit",
		},
		Challenge: ChallengeConfig{
			MaxAttempts:      5,
			TOTPDigits:       6,
			BackupCodeLength: 10,
		},
		SignOut: SignOutConfig{
			RequireSecondFactor: true,
		},
		Recovery: RecoveryConfig{
			EnableLegacyCredentialReplay: true,
		},
		Storage: StorageConfig{
			KeyPrefix: "smc",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// ConfigFromEnv builds a Config from SESSIONKIT_* environment variables,
// falling back to defaults for unset keys.
func ConfigFromEnv() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error, or nil.
func (c Config) Validate() error {
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("config: challenge max attempts must be positive")
	}
	if c.Challenge.TOTPDigits < 6 || c.Challenge.TOTPDigits > 10 {
		return errors.New("config: totp digits out of range")
	}
	if c.Challenge.BackupCodeLength <= 0 {
		return errors.New("config: backup code length must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("config: audit buffer size must be positive")
	}
	if c.API.Timeout <= 0 {
		return errors.New("config: api timeout must be positive")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := defaultConfig()
	if c.API.Timeout == 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = def.API.UserAgent
	}
	if c.Challenge.MaxAttempts == 0 {
		c.Challenge.MaxAttempts = def.Challenge.MaxAttempts
	}
	if c.Challenge.TOTPDigits == 0 {
		c.Challenge.TOTPDigits = def.Challenge.TOTPDigits
	}
	if c.Challenge.BackupCodeLength == 0 {
		c.Challenge.BackupCodeLength = def.Challenge.BackupCodeLength
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = def.Storage.KeyPrefix
	}
	if c.Audit.Enabled && c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	return c
}
