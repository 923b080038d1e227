package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Import   ImportConfig   `mapstructure:"import"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimitMB  int           `mapstructure:"body_limit_mb"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ApprovalConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ImportConfig struct {
	MaxErrors  int `mapstructure:"max_errors"`
	HeaderRows int `mapstructure:"header_rows"`
}

// SeedConfig is the bootstrap admin account, created once when missing.
type SeedConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
	AdminName     string `mapstructure:"admin_name"`
}

// PolicyConfig is the on-disk form of policy.Set.
type PolicyConfig struct {
	NegativeStock struct {
		Allowed      bool   `mapstructure:"allowed"`
		MaxThreshold *int64 `mapstructure:"max_threshold"`
	} `mapstructure:"negative_stock"`
	ReasonRequired     []string         `mapstructure:"reason_required"`
	ApprovalThresholds map[string]int64 `mapstructure:"approval_thresholds"`
}

// Set converts the config into a policy.Set, rejecting unknown actions.
func (p PolicyConfig) Set() (policy.Set, error) {
	set := policy.Default()
	set.NegativeStock.Allowed = p.NegativeStock.Allowed
	if p.NegativeStock.MaxThreshold != nil {
		v := *p.NegativeStock.MaxThreshold
		set.NegativeStock.MaxThreshold = &v
	}
	for _, purpose := range p.ReasonRequired {
		set.ReasonRequired[policy.Purpose(strings.ToLower(strings.TrimSpace(purpose)))] = true
	}
	for name, threshold := range p.ApprovalThresholds {
		action, ok := model.ParseActionClass(name)
		if !ok {
			return policy.Set{}, fmt.Errorf("policy.approval_thresholds: unknown action %q", name)
		}
		if threshold < 0 {
			return policy.Set{}, fmt.Errorf("policy.approval_thresholds.%s must not be negative", name)
		}
		set.ApprovalThresholds[action] = threshold
	}
	return set, nil
}

// Load reads an optional .env file, an optional YAML config file and the
// environment, in increasing order of precedence. An empty configPath skips
// the file.
func Load(configPath string) (*Config, *viper.Viper, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.body_limit_mb", 10)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("approval.ttl", 24*time.Hour)

	v.SetDefault("import.max_errors", 50)
	v.SetDefault("import.header_rows", 1)

	v.SetDefault("policy.negative_stock.allowed", false)

	v.SetDefault("seed.admin_name", "Administrator")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("seed.admin_email", "ADMIN_EMAIL")
	v.BindEnv("seed.admin_password", "ADMIN_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for sqlite")
	}
	if c.Approval.TTL <= 0 {
		return errors.New("approval.ttl must be positive")
	}
	if c.Import.MaxErrors <= 0 {
		return errors.New("import.max_errors must be positive")
	}
	if c.Import.HeaderRows < 0 {
		return errors.New("import.header_rows must not be negative")
	}
	if _, err := c.Policy.Set(); err != nil {
		return err
	}
	return nil
}
