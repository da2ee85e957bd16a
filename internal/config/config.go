// Package config loads process configuration once at startup from an optional
// file and TASKFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"taskflow.dev/internal/auth"
)

const envPrefix = "TASKFLOW"

// Config represents the configuration implementation.
type Config struct {
	HTTP      *HTTP
	GRPC      *GRPC
	Database  *Database
	Auth      *Auth
	RateLimit *RateLimit
	Logger    *Logger
	Audit     *Audit
	Bootstrap *Bootstrap
}

type HTTP struct {
	Addr            string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type GRPC struct {
	Addr string
}

type Database struct {
	Driver string
	DSN    string
}

type Auth struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

type RateLimit struct {
	Burst     int
	PerSecond float64
	// TrustForwarded keys buckets on X-Forwarded-For. Enable only behind a proxy that overwrites it.
	TrustForwarded bool
}

type Logger struct {
	Level  string
	Format string
}

type Audit struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Bootstrap seeds an initial ADMIN when the directory has none.
type Bootstrap struct {
	AdminEmail    string
	AdminPassword string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.issuer", "taskflow")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.bcrypt_cost", 0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.per_second", 10)
	v.SetDefault("ratelimit.trust_forwarded", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("audit.kafka.topic", "taskflow.audit")
}

// Load reads configuration from path (optional) and the environment. Keys map
// to variables by upper-casing and replacing dots, e.g. auth.secret is
// TASKFLOW_AUTH_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"auth.secret", "audit.kafka.brokers", "http.allowed_origins", "bootstrap.admin_email", "bootstrap.admin_password"} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTP: &HTTP{
			Addr:            v.GetString("http.addr"),
			MaxBodyBytes:    v.GetInt64("http.max_body_bytes"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetStringSlice("http.allowed_origins")),
		},
		GRPC:     &GRPC{Addr: v.GetString("grpc.addr")},
		Database: &Database{Driver: v.GetString("database.driver"), DSN: v.GetString("database.dsn")},
		Auth: &Auth{
			Secret:     v.GetString("auth.secret"),
			Issuer:     v.GetString("auth.issuer"),
			AccessTTL:  v.GetDuration("auth.access_ttl"),
			RefreshTTL: v.GetDuration("auth.refresh_ttl"),
			BcryptCost: v.GetInt("auth.bcrypt_cost"),
		},
		RateLimit: &RateLimit{
			Burst:          v.GetInt("ratelimit.burst"),
			PerSecond:      v.GetFloat64("ratelimit.per_second"),
			TrustForwarded: v.GetBool("ratelimit.trust_forwarded"),
		},
		Logger:    &Logger{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		Audit: &Audit{
			KafkaBrokers: splitList(v.GetStringSlice("audit.kafka.brokers")),
			KafkaTopic:   v.GetString("audit.kafka.topic"),
		},
		Bootstrap: &Bootstrap{
			AdminEmail:    v.GetString("bootstrap.admin_email"),
			AdminPassword: v.GetString("bootstrap.admin_password"),
		},
	}
	return cfg, nil
}

// Validate rejects configurations the process must not start with.
func (c *Config) Validate() error {
	if err := auth.ValidateSecret(c.Auth.Secret); err != nil {
		return err
	}
	var errs []error
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth ttls must be positive"))
	}
	switch c.Database.Driver {
	case "pgx", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("bootstrap admin needs both email and password"))
	}
	return errors.Join(errs...)
}

// Env values arrive as one comma-separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
