package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HTTPSection configures the public listeners.
type HTTPSection struct {
	Addr           string   `yaml:"addr"`
	GRPCAddr       string   `yaml:"grpc_addr"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins"`
}

// DatabaseSection configures PostgreSQL. An empty DSN selects the in-memory store.
type DatabaseSection struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// AuthSection configures session tokens.
type AuthSection struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// AdminSection holds the seeded administrator credentials.
type AdminSection struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// NotifySection configures outbound email.
type NotifySection struct {
	SendGridKey string  `yaml:"sendgrid_key"`
	FromName    string  `yaml:"from_name"`
	FromAddress string  `yaml:"from_address"`
	RadiusKm    float64 `yaml:"radius_km"`
	QueueSize   int     `yaml:"queue_size"`
}

// Config is the full runtime configuration of the API binary.
type Config struct {
	HTTP     HTTPSection     `yaml:"http"`
	Database DatabaseSection `yaml:"database"`
	Auth     AuthSection     `yaml:"auth"`
	Admin    AdminSection    `yaml:"admin"`
	Notify   NotifySection   `yaml:"notify"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTP: HTTPSection{
			Addr:           ":8080",
			GRPCAddr:       ":9090",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Auth: AuthSection{TokenTTL: 24 * time.Hour},
		Admin: AdminSection{
			Email: "admin@fooddonation.com",
			Name:  "System Admin",
		},
		Notify: NotifySection{
			FromName:  "FoodBridge",
			RadiusKm:  20,
			QueueSize: 256,
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then FOODBRIDGE_* environment variables. A .env file in the working
// directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		path = os.Getenv("FOODBRIDGE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("FOODBRIDGE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("FOODBRIDGE_GRPC_ADDR", &cfg.HTTP.GRPCAddr)
	str("FOODBRIDGE_PG_DSN", &cfg.Database.DSN)
	str("FOODBRIDGE_AUTH_SECRET", &cfg.Auth.Secret)
	str("FOODBRIDGE_ADMIN_EMAIL", &cfg.Admin.Email)
	str("FOODBRIDGE_ADMIN_PASSWORD", &cfg.Admin.Password)
	str("FOODBRIDGE_ADMIN_NAME", &cfg.Admin.Name)
	str("FOODBRIDGE_SENDGRID_KEY", &cfg.Notify.SendGridKey)
	str("FOODBRIDGE_MAIL_FROM", &cfg.Notify.FromAddress)
	str("FOODBRIDGE_MAIL_FROM_NAME", &cfg.Notify.FromName)

	if v, ok := lookup("FOODBRIDGE_CORS_ORIGINS"); ok {
		cfg.HTTP.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, o)
			}
		}
	}
	if v, ok := lookup("FOODBRIDGE_AUTO_MIGRATE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FOODBRIDGE_AUTO_MIGRATE: %w", err)
		}
		cfg.Database.AutoMigrate = b
	}
	if v, ok := lookup("FOODBRIDGE_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FOODBRIDGE_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	floats := map[string]*float64{
		"FOODBRIDGE_RATE_LIMIT_RPS": &cfg.HTTP.RateLimitRPS,
		"FOODBRIDGE_NOTIFY_RADIUS":  &cfg.Notify.RadiusKm,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}
	ints := map[string]*int{
		"FOODBRIDGE_RATE_LIMIT_BURST":  &cfg.HTTP.RateLimitBurst,
		"FOODBRIDGE_NOTIFY_QUEUE_SIZE": &cfg.Notify.QueueSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate reports configuration the API cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required (FOODBRIDGE_AUTH_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		errs = append(errs, errors.New("admin.password is required when admin.email is set"))
	}
	if c.Notify.SendGridKey != "" && c.Notify.FromAddress == "" {
		errs = append(errs, errors.New("notify.from_address is required with a SendGrid key"))
	}
	if c.Notify.RadiusKm <= 0 {
		errs = append(errs, errors.New("notify.radius_km must be positive"))
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	return errors.Join(errs...)
}
