// Copyright (c) 2025 Justin Cranford
//
//

// Package config loads the relying-party service's configuration once at
// startup from MPO_AUTHN_-prefixed environment variables into an immutable
// struct, per the configuration contract of the external interfaces.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mpoauthn/internal/apperr"
)

const envPrefix = "MPO_AUTHN"

// RelyingPartyConfig configures the WebAuthn relying-party identity.
type RelyingPartyConfig struct {
	ID   string
	Name string
}

// DBConfig configures the durable credential/key store (C2, C3).
type DBConfig struct {
	Host        string
	Port        uint16
	Name        string
	Username    string
	Password    string
	MaxPoolSize int
}

// RedisConfig configures the production ceremony store (C1) backend.
type RedisConfig struct {
	Host           string
	Port           uint16
	Password       string
	Database       int
	MaxConnections int
}

// RotationConfig configures the key rotation engine/scheduler (C5, C6).
type RotationConfig struct {
	Enabled               bool
	RotationInterval      time.Duration
	GracePeriod           time.Duration
	RetentionPeriod       time.Duration
	KeySize               int
	KeyIDPrefix           string
	MasterEncryptionKey   string
}

// TokenConfig configures the Token Signer's claims and lifetime (C8).
type TokenConfig struct {
	Issuer   string
	Audience string
	Lifetime time.Duration
}

// ObservabilityConfig configures optional OTLP log export.
type ObservabilityConfig struct {
	ServiceName     string
	JaegerEndpoint  string
}

// HTTPConfig configures the listener for the external interfaces of §6.
// These bind settings are not named in the core spec's configuration
// table (the HTTP framework is an out-of-scope collaborator) but the
// service still needs somewhere to listen; MPO_AUTHN_HTTP_* is an
// additive, non-required extension with safe defaults.
type HTTPConfig struct {
	BindAddress string
	BindPort    uint16
}

// Config is the fully parsed, immutable application configuration.
type Config struct {
	RelyingParty  RelyingPartyConfig
	DB            DBConfig
	Redis         RedisConfig
	Rotation      RotationConfig
	Token         TokenConfig
	Observability ObservabilityConfig
	HTTP          HTTPConfig
}

// Load reads and validates configuration from the environment. Missing
// required values and out-of-range values checked by Validate abort with
// apperr.ErrConfigInvalid naming the offending variable. Values are read
// through viper's Get* accessors, so a malformed integer, duration or
// boolean is not rejected here: it is read as zero (or false) and only
// fails if Validate rejects that zero value.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		RelyingParty: RelyingPartyConfig{
			ID:   v.GetString("APP_RELYING_PARTY_ID"),
			Name: v.GetString("APP_RELYING_PARTY_NAME"),
		},
		DB: DBConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        uint16(v.GetUint32("DB_PORT")),
			Name:        v.GetString("DB_NAME"),
			Username:    v.GetString("DB_USERNAME"),
			Password:    v.GetString("DB_PASSWORD"),
			MaxPoolSize: v.GetInt("DB_MAX_POOL_SIZE"),
		},
		Redis: RedisConfig{
			Host:           v.GetString("REDIS_HOST"),
			Port:           uint16(v.GetUint32("REDIS_PORT")),
			Password:       v.GetString("REDIS_PASSWORD"),
			Database:       v.GetInt("REDIS_DATABASE"),
			MaxConnections: v.GetInt("REDIS_MAX_CONNECTIONS"),
		},
		Rotation: RotationConfig{
			Enabled:             v.GetBool("JWT_KEY_ROTATION_ENABLED"),
			RotationInterval:    v.GetDuration("JWT_KEY_ROTATION_INTERVAL"),
			GracePeriod:         v.GetDuration("JWT_KEY_GRACE_PERIOD"),
			RetentionPeriod:     v.GetDuration("JWT_KEY_RETENTION"),
			KeySize:             v.GetInt("JWT_KEY_SIZE"),
			KeyIDPrefix:         v.GetString("JWT_KEY_ID_PREFIX"),
			MasterEncryptionKey: v.GetString("JWT_MASTER_ENCRYPTION_KEY"),
		},
		Token: TokenConfig{
			Issuer:   v.GetString("JWT_ISSUER"),
			Audience: v.GetString("JWT_AUDIENCE"),
			Lifetime: v.GetDuration("JWT_LIFETIME"),
		},
		Observability: ObservabilityConfig{
			ServiceName:    v.GetString("OPEN_TELEMETRY_SERVICE_NAME"),
			JaegerEndpoint: v.GetString("OPEN_TELEMETRY_JAEGER_ENDPOINT"),
		},
		HTTP: HTTPConfig{
			BindAddress: v.GetString("HTTP_BIND_ADDRESS"),
			BindPort:    uint16(v.GetUint32("HTTP_BIND_PORT")),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "webauthn")
	v.SetDefault("DB_MAX_POOL_SIZE", 10)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DATABASE", 0)
	v.SetDefault("REDIS_MAX_CONNECTIONS", 10)
	v.SetDefault("JWT_KEY_ROTATION_ENABLED", false)
	v.SetDefault("JWT_KEY_ROTATION_INTERVAL", "4320h") // 180d
	v.SetDefault("JWT_KEY_GRACE_PERIOD", "1h")
	v.SetDefault("JWT_KEY_RETENTION", "1h")
	v.SetDefault("JWT_KEY_SIZE", 2048)
	v.SetDefault("JWT_KEY_ID_PREFIX", "webauthn")
	v.SetDefault("JWT_LIFETIME", "15m")
	v.SetDefault("HTTP_BIND_ADDRESS", "0.0.0.0")
	v.SetDefault("HTTP_BIND_PORT", 8443)
}

// Validate enforces the strict-parsing contract of the configuration
// design: required fields must be present, enumerated fields must be in
// range.
func Validate(cfg *Config) error {
	required := map[string]string{
		"APP_RELYING_PARTY_ID":   cfg.RelyingParty.ID,
		"APP_RELYING_PARTY_NAME": cfg.RelyingParty.Name,
		"DB_USERNAME":            cfg.DB.Username,
		"DB_PASSWORD":            cfg.DB.Password,
		"REDIS_HOST":             cfg.Redis.Host,
		"REDIS_PASSWORD":         cfg.Redis.Password,
		"JWT_ISSUER":             cfg.Token.Issuer,
		"JWT_AUDIENCE":           cfg.Token.Audience,
	}

	for name, value := range required {
		if value == "" {
			return configInvalid(name, "is required")
		}
	}

	if cfg.DB.Port < 1 {
		return configInvalid("DB_PORT", "must be between 1 and 65535")
	}

	if cfg.Redis.Database < 0 || cfg.Redis.Database > 15 {
		return configInvalid("REDIS_DATABASE", "must be between 0 and 15")
	}

	if cfg.Rotation.Enabled {
		if cfg.Rotation.MasterEncryptionKey == "" {
			return configInvalid("JWT_MASTER_ENCRYPTION_KEY", "is required when JWT_KEY_ROTATION_ENABLED is true")
		}
	}

	switch cfg.Rotation.KeySize {
	case 2048, 3072, 4096:
	default:
		return configInvalid("JWT_KEY_SIZE", "must be one of 2048, 3072, 4096")
	}

	if cfg.Rotation.MasterEncryptionKey == "" {
		return configInvalid("JWT_MASTER_ENCRYPTION_KEY", "is required")
	}

	return nil
}

func configInvalid(name, reason string) error {
	return apperr.WrapError(apperr.ErrConfigInvalid, fmt.Errorf("%s %s", name, reason))
}

// LogStartup emits the resolved configuration at INFO level with every
// secret-bearing field masked by maskSecret, so an operator can confirm
// what was loaded without the password/master-key values reaching logs.
func LogStartup(logger *slog.Logger, cfg *Config) {
	logger.Info("configuration loaded",
		"relying_party_id", cfg.RelyingParty.ID,
		"relying_party_name", cfg.RelyingParty.Name,
		"db_host", cfg.DB.Host,
		"db_port", cfg.DB.Port,
		"db_name", cfg.DB.Name,
		"db_username", cfg.DB.Username,
		"db_password", maskSecret(cfg.DB.Password),
		"redis_host", cfg.Redis.Host,
		"redis_port", cfg.Redis.Port,
		"redis_password", maskSecret(cfg.Redis.Password),
		"redis_database", cfg.Redis.Database,
		"rotation_enabled", cfg.Rotation.Enabled,
		"rotation_interval", cfg.Rotation.RotationInterval,
		"rotation_key_size", cfg.Rotation.KeySize,
		"rotation_key_id_prefix", cfg.Rotation.KeyIDPrefix,
		"rotation_master_encryption_key", maskSecret(cfg.Rotation.MasterEncryptionKey),
		"token_issuer", cfg.Token.Issuer,
		"token_audience", cfg.Token.Audience,
		"token_lifetime", cfg.Token.Lifetime,
		"http_bind_address", cfg.HTTP.BindAddress,
		"http_bind_port", cfg.HTTP.BindPort,
	)
}

// maskSecret renders a secret for logging: "(not set)" when empty, "****"
// when too short to partially reveal, otherwise the first 4 characters
// followed by "****".
func maskSecret(secret string) string {
	const visiblePrefixLen = 4

	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:visiblePrefixLen] + "****"
	}
}

// envKeyReplacer replaces the dots in viper keys with underscores; the
// MPO_AUTHN_ prefix is not added here.
type envKeyReplacer struct{}

func (envKeyReplacer) Replace(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, '_')

			continue
		}

		out = append(out, s[i])
	}

	return string(out)
}
