package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/example/parcel-express/internal/contact"
	"github.com/example/parcel-express/internal/identity"
)

// ServerConfig captures all tunable parameters for the site process.
// Values come from environment variables (optionally a config file) with sane
// defaults so the binary can run locally without excessive setup: no backend
// endpoint means an in-process backend, no Redis means local invalidation only.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"http_read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"http_write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"http_idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"http_shutdown_timeout"`

	BackendEndpoint string        `mapstructure:"backend_endpoint"`
	BackendTimeout  time.Duration `mapstructure:"backend_timeout"`
	Admins          []string      `mapstructure:"admins"`

	Accounts      []identity.Account `mapstructure:"accounts"`
	SessionSecret string             `mapstructure:"session_secret"`
	SessionTTL    time.Duration      `mapstructure:"session_ttl"`
	SecureCookies bool               `mapstructure:"secure_cookies"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisChannel  string `mapstructure:"redis_channel"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroup   string   `mapstructure:"kafka_group"`

	PGDSN         string `mapstructure:"pg_dsn"`
	RunMigrations bool   `mapstructure:"migrate"`

	S3Region     string `mapstructure:"s3_region"`
	S3Bucket     string `mapstructure:"s3_bucket"`
	S3PublicBase string `mapstructure:"s3_public_base"`
	BlobPrefix   string `mapstructure:"blob_prefix"`

	CacheStaleTime time.Duration `mapstructure:"cache_stale_time"`
	FormRateLimit  float64       `mapstructure:"form_rate_limit"`
	FormBurst      int           `mapstructure:"form_burst"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Contact contact.Config `mapstructure:"contact"`
}

func defaults() map[string]any {
	c := contact.Default()
	return map[string]any{
		"http_addr":             ":8080",
		"http_read_timeout":     "5s",
		"http_write_timeout":    "10s",
		"http_idle_timeout":     "120s",
		"http_shutdown_timeout": "15s",
		"backend_endpoint":      "",
		"backend_timeout":       "10s",
		"admins":                "",
		"accounts":              "",
		"session_secret":        "",
		"session_ttl":           "12h",
		"secure_cookies":        false,
		"redis_addr":            "",
		"redis_password":        "",
		"redis_channel":         "parcel-express:invalidate",
		"kafka_brokers":         "",
		"kafka_topic":           "site-activity",
		"kafka_group":           "activity-rollup",
		"pg_dsn":                "",
		"migrate":               false,
		"s3_region":             "",
		"s3_bucket":             "",
		"s3_public_base":        "",
		"blob_prefix":           "/blobs",
		"cache_stale_time":      "30s",
		"form_rate_limit":       0.2,
		"form_burst":            5,
		"log_level":             "info",
		"log_format":            "json",
		"contact.phone":         c.Phone,
		"contact.whatsapp":      c.WhatsApp,
		"contact.company_name":  c.CompanyName,
		"contact.service_area":  c.ServiceArea,
		"contact.location":      c.Location,
	}
}

// LoadServerConfig reads the environment and, when file is non-empty, a
// config file (any format viper understands). Env wins over the file.
// Nested keys map to env with underscores, e.g. contact.phone -> CONTACT_PHONE.
func LoadServerConfig(file string) (ServerConfig, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	hooks := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			accountsHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return ServerConfig{}, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Admins = trimAll(cfg.Admins)
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	var errs []error
	if c.SessionSecret != "" && len(c.SessionSecret) < 16 {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least 16 bytes"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be > 0"))
	}
	if c.CacheStaleTime < 0 {
		errs = append(errs, fmt.Errorf("CACHE_STALE_TIME must be >= 0"))
	}
	if c.FormRateLimit <= 0 || c.FormBurst <= 0 {
		errs = append(errs, fmt.Errorf("FORM_RATE_LIMIT and FORM_BURST must be > 0"))
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		errs = append(errs, fmt.Errorf("S3_REGION is required with S3_BUCKET"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("KAFKA_TOPIC is required with KAFKA_BROKERS"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	seen := map[string]bool{}
	for i, a := range c.Accounts {
		if a.Principal == "" || a.Passcode == "" {
			errs = append(errs, fmt.Errorf("account %d: principal and passcode are required", i))
			continue
		}
		if seen[a.Principal] {
			errs = append(errs, fmt.Errorf("account %q listed twice", a.Principal))
		}
		seen[a.Principal] = true
	}
	if c.Contact.WhatsApp == "" {
		errs = append(errs, fmt.Errorf("CONTACT_WHATSAPP must be set"))
	}
	return errors.Join(errs...)
}

var accountSliceType = reflect.TypeOf([]identity.Account{})

// accountsHook decodes ACCOUNTS=principal:passcode[:name],... from the env.
// Config files can list accounts as objects instead.
func accountsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != accountSliceType {
		return data, nil
	}
	var out []identity.Account
	for _, entry := range trimAll(strings.Split(data.(string), ",")) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("account %q: want principal:passcode[:name]", entry)
		}
		a := identity.Account{Principal: strings.TrimSpace(parts[0]), Passcode: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			a.Name = strings.TrimSpace(parts[2])
		}
		out = append(out, a)
	}
	return out, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
