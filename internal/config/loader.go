// Package config loads companion settings from the environment, an optional
// .env file and an optional config file. Environment variables use the
// COMPANION_ prefix and win over the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/conference-companion/internal/agenda"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "COMPANION"

// Config captures the settings of the server and of the client commands.
type Config struct {
	HTTPAddr       string
	AllowedOrigins []string

	SQLitePath string

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel  string
	LogFormat string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LimitsTTL     time.Duration

	Broker            string
	AMQPURL           string
	AMQPExchange      string
	NATSURL           string
	NATSSubjectPrefix string

	SpeakersFile         string
	SpeakerLookupTimeout time.Duration
	RequestCooldown      time.Duration
	ExpireInterval       time.Duration
	EventStart           time.Time
	EventDays            string
	EventID              string

	APIURL   string
	APIToken string
}

// Brokers accepted in COMPANION_BROKER.
const (
	BrokerLocal = "local"
	BrokerAMQP  = "amqp"
	BrokerNATS  = "nats"
)

// Options controls where Load reads from.
type Options struct {
	// EnvFile is loaded into the environment when it exists; existing
	// variables are not overridden. Empty means ".env".
	EnvFile string
	// ConfigFile is an optional TOML, YAML or JSON file.
	ConfigFile string
	// Server requires the settings only the API server needs.
	Server bool
}

var defaults = map[string]any{
	"http_addr":              ":8080",
	"allowed_origins":        "",
	"sqlite_path":            "companion.db",
	"token_ttl":              "24h",
	"log_level":              "info",
	"log_format":             "json",
	"redis_db":               "0",
	"limits_ttl":             "30s",
	"broker":                 BrokerLocal,
	"amqp_exchange":          "companion.changes",
	"nats_subject_prefix":    "companion.changes",
	"speaker_lookup_timeout": "5s",
	"request_cooldown":       "0s",
	"expire_interval":        "1m",
	"event_days":             "FREQ=DAILY;COUNT=3",
	"event_id":               "main",
	"api_url":                "http://localhost:8080",
}

var knownKeys = []string{
	"jwt_secret", "redis_addr", "redis_password", "amqp_url", "nats_url",
	"speakers_file", "event_start", "api_token",
}

// Load reads the configuration. Missing and invalid keys are reported
// together in one error.
func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	p := parser{v: v}
	cfg := Config{
		HTTPAddr:             p.str("http_addr"),
		AllowedOrigins:       p.list("allowed_origins"),
		SQLitePath:           p.str("sqlite_path"),
		JWTSecret:            p.str("jwt_secret"),
		TokenTTL:             p.duration("token_ttl", false),
		LogLevel:             strings.ToLower(p.str("log_level")),
		LogFormat:            strings.ToLower(p.str("log_format")),
		RedisAddr:            p.str("redis_addr"),
		RedisPassword:        p.str("redis_password"),
		RedisDB:              p.integer("redis_db"),
		LimitsTTL:            p.duration("limits_ttl", false),
		Broker:               strings.ToLower(p.str("broker")),
		AMQPURL:              p.str("amqp_url"),
		AMQPExchange:         p.str("amqp_exchange"),
		NATSURL:              p.str("nats_url"),
		NATSSubjectPrefix:    p.str("nats_subject_prefix"),
		SpeakersFile:         p.str("speakers_file"),
		SpeakerLookupTimeout: p.duration("speaker_lookup_timeout", false),
		RequestCooldown:      p.duration("request_cooldown", true),
		ExpireInterval:       p.duration("expire_interval", false),
		EventStart:           p.date("event_start"),
		EventDays:            p.str("event_days"),
		EventID:              p.str("event_id"),
		APIURL:               strings.TrimRight(p.str("api_url"), "/"),
		APIToken:             p.str("api_token"),
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		p.invalidKey("log_level")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		p.invalidKey("log_format")
	}
	switch cfg.Broker {
	case BrokerLocal:
	case BrokerAMQP:
		if cfg.AMQPURL == "" {
			p.missingKey("amqp_url")
		}
	case BrokerNATS:
		if cfg.NATSURL == "" {
			p.missingKey("nats_url")
		}
	default:
		p.invalidKey("broker")
	}

	if opts.Server {
		switch {
		case cfg.JWTSecret == "":
			p.missingKey("jwt_secret")
		case len(cfg.JWTSecret) < 32:
			p.invalidKey("jwt_secret")
		}
		if cfg.SQLitePath == "" {
			p.missingKey("sqlite_path")
		}
	}

	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type parser struct {
	v       *viper.Viper
	missing []string
	invalid []string
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func (p *parser) missingKey(key string) { p.missing = append(p.missing, envName(key)) }
func (p *parser) invalidKey(key string) { p.invalid = append(p.invalid, envName(key)) }

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(p.str(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) integer(key string) int {
	raw := p.str(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.invalidKey(key)
		return 0
	}
	return n
}

func (p *parser) duration(key string, allowZero bool) time.Duration {
	raw := p.str(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		p.invalidKey(key)
		return 0
	}
	return d
}

func (p *parser) date(key string) time.Time {
	raw := p.str(key)
	if raw == "" {
		return time.Time{}
	}
	// Dates are wall-clock days of the event, not UTC instants.
	t, err := time.ParseInLocation("2006-01-02", raw, agenda.EventZone)
	if err != nil {
		p.invalidKey(key)
		return time.Time{}
	}
	return t
}

func (p *parser) err() error {
	var parts []string
	if len(p.missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(p.invalid, ", "))
	}
	if len(parts) == 0 {
		return nil
	}
	return errors.New(strings.Join(parts, "; "))
}
