package clconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/syslog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string       `yaml:"trustedproxies"`
	TrustedPlatform string         `yaml:"trustedplatform"`
	Database        DatabaseConfig `yaml:"database"`
	Session         SessionConfig  `yaml:"session"`
	User            UserConfig     `yaml:"user"`
	Production      bool           `yaml:"production" env:"PRODUCTION"`
	Listen          ListenConfig   `yaml:"listen"`
	Logger          LoggerConfig   `yaml:"logger"`
	Tracking        TrackingConfig `yaml:"tracking"`
}

// TrackingConfig holds the TRACK_* knobs. Every key can be overridden
// from the environment.
type TrackingConfig struct {
	AjaxRequests              bool     `yaml:"ajax_requests" env:"TRACK_AJAX_REQUESTS"`
	AnonymousUsers            bool     `yaml:"anonymous_users" env:"TRACK_ANONYMOUS_USERS"`
	AnonymousUsersWithCookies bool     `yaml:"anonymous_users_with_cookies" env:"TRACK_ANONYMOUS_USERS_WITH_COOKIES"`
	IgnoreStatusCodes         []int    `yaml:"ignore_status_codes" env:"TRACK_IGNORE_STATUS_CODES" envSeparator:","`
	IgnoreURLs                []string `yaml:"ignore_urls" env:"TRACK_IGNORE_URLS" envSeparator:","`
	Pageviews                 bool     `yaml:"pageviews" env:"TRACK_PAGEVIEWS"`
	QueryString               bool     `yaml:"query_string" env:"TRACK_QUERY_STRING"`
	Referer                   bool     `yaml:"referer" env:"TRACK_REFERER"`
	CookieName                string   `yaml:"cookie_name" env:"TRACK_COOKIE_NAME"`
	RetentionDays             int      `yaml:"retention_days" env:"TRACK_RETENTION_DAYS"`
}

type SessionConfig struct {
	Name   string `yaml:"name" env:"SESSION_COOKIE_NAME"`
	Secret string `yaml:"secret" env:"SESSION_SECRET"`
	MaxAge int    `yaml:"maxage" env:"SESSION_COOKIE_AGE"`
	Domain string `yaml:"domain" env:"SESSION_COOKIE_DOMAIN"`
	Secure bool   `yaml:"secure" env:"SESSION_COOKIE_SECURE"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level" env:"LOG_LEVEL"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website" env:"LISTEN_WEBSITE"`
	Metrics string `yaml:"metrics" env:"LISTEN_METRICS"`
}

type UserConfig struct {
	Login string `yaml:"login"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type DatabaseConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Db    string      `yaml:"db" env:"DATABASE_DB"`
	Path  string      `yaml:"path" env:"DATABASE_PATH"`
	Dsn   string      `yaml:"dsn" env:"DATABASE_DSN"`
}

type RedisConfig struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR"`
	Db   int    `yaml:"db" env:"REDIS_DB"`
}

// DefaultConfig returns the values used for any key the YAML file and the
// environment leave unset.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./littletrack.db",
		},
		Session: SessionConfig{
			Name:   "littletrack",
			MaxAge: 86400 * 14,
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Tracking: TrackingConfig{
			AnonymousUsers:    true,
			IgnoreStatusCodes: []int{},
			IgnoreURLs:        []string{`^(favicon\.ico|robots\.txt)$`},
			CookieName:        "_visitor_id",
		},
	}
}

func CreateExampleConfig(filename string) (string, error) {
	example := DefaultConfig()
	example.User = UserConfig{
		Login: "admin",
		Pass:  "admin1234",
	}
	example.Tracking.Pageviews = true
	example.Tracking.IgnoreStatusCodes = []int{404, 500}
	example.Tracking.IgnoreURLs = append(example.Tracking.IgnoreURLs, "^health", "^admin/")

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Listen.Metrics = "127.0.0.1:8090"
		example.Production = true
		example.Session.Secure = true
		example.Database.Path = "/var/lib/littletrack/sqlite.db"
		example.Tracking.RetentionDays = 90
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/littletrack/littletrack.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/littletrack/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// LoadConfig reads the YAML file over DefaultConfig, then applies .env and
// environment overrides.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("yaml parsing error: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv loads a .env file when one exists and overlays environment
// variables on conf.
func ApplyEnv(conf *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to load .env: %w", err)
	}
	if err := env.Parse(conf); err != nil {
		return fmt.Errorf("environment parsing error: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Db {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.db must be sqlite, mysql or postgres, got %q", c.Database.Db)
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.maxage must be positive")
	}
	if c.Tracking.CookieName == "" {
		return fmt.Errorf("tracking.cookie_name is required")
	}
	if c.Tracking.RetentionDays < 0 {
		return fmt.Errorf("tracking.retention_days must not be negative")
	}
	return nil
}

func CreateExample(shouldCreateExample bool, configFile string) {
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "littletrack.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("example creation error: %w", err)
	}

	fmt.Printf("✅ Example file created: %s\n", filename)
	fmt.Println("⚠️  user.pass is hashed with argon2 into the users table on first start")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Littletrack version %s", version)
	logPrintf("Production mode %v", config.Production)

	logPrintf("Database")
	logPrintf("  • Type %s", config.Database.Db)
	if config.Database.Db == "sqlite" {
		logPrintf("  • Path %s", config.Database.Path)
	}
	if config.Database.Redis.Addr != "" {
		logPrintf("  • Live counters on redis %s", config.Database.Redis.Addr)
	}

	t := config.Tracking
	logPrintf("Tracking")
	logPrintf("  • Ajax requests %v", t.AjaxRequests)
	logPrintf("  • Anonymous users %v", t.AnonymousUsers)
	logPrintf("  • Cookie mode %v (cookie %s)", t.AnonymousUsersWithCookies, t.CookieName)
	logPrintf("  • Pageviews %v, referer %v, query string %v", t.Pageviews, t.Referer, t.QueryString)
	logPrintf("  • Ignored status codes %v", t.IgnoreStatusCodes)
	logPrintf("  • Ignored urls %v", t.IgnoreURLs)
	if t.RetentionDays > 0 {
		logPrintf("  • Retention %d days", t.RetentionDays)
	} else {
		logPrintf("  • Retention disabled")
	}

	logPrintf("Logger level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  • File %s (max size %d, max age %d, backups %d, compress %v)",
			config.Logger.File.Path, config.Logger.File.MaxSize, config.Logger.File.MaxAge,
			config.Logger.File.MaxBackups, config.Logger.File.Compress)
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  • Syslog %s %s tag %s", config.Logger.Syslog.Protocol, config.Logger.Syslog.Address, config.Logger.Syslog.Tag)
	}
}

func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
