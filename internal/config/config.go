package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ammar1510/parley/internal/database"
)

// Config is the server configuration: an optional YAML file overlaid by
// environment variables.
type Config struct {
	Env      string `yaml:"env"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DBType      string `yaml:"dbType"`
	DatabaseURL string `yaml:"databaseURL"`
	DBHost      string `yaml:"dbHost"`
	DBPort      string `yaml:"dbPort"`
	DBName      string `yaml:"dbName"`
	DBUser      string `yaml:"dbUser"`
	DBPassword  string `yaml:"dbPassword"`

	JWTSecret string        `yaml:"jwtSecret"`
	JWTTTL    time.Duration `yaml:"jwtTTL"`

	AllowedOrigins []string `yaml:"allowedOrigins"`
	FrontendURL    string   `yaml:"frontendURL"`
	AppName        string   `yaml:"appName"`

	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     string `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	SMTPFrom     string `yaml:"smtpFrom"`

	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	LoginRateLimitPerMinute int    `yaml:"loginRateLimitPerMinute"`
	ResetRateLimitPerMinute int    `yaml:"resetRateLimitPerMinute"`
	ConcealUnknownEmails    bool   `yaml:"concealUnknownEmails"`
}

func defaults() Config {
	return Config{
		Env:                     "development",
		Port:                    "8080",
		DBType:                  string(database.PostgreSQL),
		DBPort:                  "5432",
		JWTTTL:                  24 * time.Hour,
		FrontendURL:             "http://localhost:3000",
		AppName:                 "Chat App",
		SMTPPort:                "587",
		LoginRateLimitPerMinute: 10,
		ResetRateLimitPerMinute: 3,
	}
}

// Load reads the YAML file at path, if any, then applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("ENV", &cfg.Env)
	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("DB_TYPE", &cfg.DBType)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("DB_HOST", &cfg.DBHost)
	setString("DB_PORT", &cfg.DBPort)
	setString("DB_NAME", &cfg.DBName)
	setString("DB_USER", &cfg.DBUser)
	setString("DB_PASSWORD", &cfg.DBPassword)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("FRONTEND_URL", &cfg.FrontendURL)
	setString("APP_NAME", &cfg.AppName)
	setString("SMTP_HOST", &cfg.SMTPHost)
	setString("SMTP_PORT", &cfg.SMTPPort)
	setString("SMTP_USERNAME", &cfg.SMTPUsername)
	setString("SMTP_PASSWORD", &cfg.SMTPPassword)
	setString("SMTP_FROM", &cfg.SMTPFrom)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: JWT_TTL: %w", err)
		}
		cfg.JWTTTL = d
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: LOGIN_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.LoginRateLimitPerMinute = n
	}
	if v := os.Getenv("RESET_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: RESET_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.ResetRateLimitPerMinute = n
	}
	if v := os.Getenv("CONCEAL_UNKNOWN_EMAILS"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: CONCEAL_UNKNOWN_EMAILS: %w", err)
		}
		cfg.ConcealUnknownEmails = b
	}
	return nil
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Port == "" {
		return errors.New("config: port is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("config: jwt ttl must be positive")
	}
	switch database.DatabaseType(c.DBType) {
	case database.Memory:
	case database.PostgreSQL:
		if c.DatabaseURL == "" && (c.DBHost == "" || c.DBName == "" || c.DBUser == "") {
			return errors.New("config: database connection details missing, set DATABASE_URL or DB_HOST, DB_NAME and DB_USER")
		}
	default:
		return fmt.Errorf("config: unsupported DB_TYPE %q", c.DBType)
	}
	if c.RedisAddr != "" && (c.LoginRateLimitPerMinute <= 0 || c.ResetRateLimitPerMinute <= 0) {
		return errors.New("config: rate limits must be positive when REDIS_ADDR is set")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("config: SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

// ConnString returns DatabaseURL, or builds a Postgres URL from the DB_* parts.
func (c Config) ConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
