package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"Pixel_Canvas/internal/model"
)

// Config 运行时配置，全部来自环境变量
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Storage 选择画布/世界/ban 的存储：memory 或 sql
	Storage  string `env:"STORAGE" envDefault:"memory"`
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"file:canvas.db?_pragma=busy_timeout(5000)"`

	// ChargeBackend 单独选择 charge 账本的存储：memory、sql 或 redis
	ChargeBackend string `env:"CHARGE_BACKEND" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	ChargeCapacity      int           `env:"CHARGE_CAPACITY" envDefault:"30"`
	ChargeRegenInterval time.Duration `env:"CHARGE_REGEN_INTERVAL" envDefault:"60s"`

	// InitialCharges 不设置时等于 capacity；显式设成 0 就是新用户从 0 开始
	InitialCharges     *int          `env:"CHARGE_INITIAL"`
	AdminBypassCharges bool          `env:"ADMIN_BYPASS_CHARGES" envDefault:"false"`
	StorageTimeout     time.Duration `env:"STORAGE_TIMEOUT" envDefault:"2s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"canvas.placements"`
	EventBuffer  int      `env:"EVENT_BUFFER" envDefault:"4096"`

	JWTSecret   string `env:"JWT_SECRET" envDefault:"secret-key"`
	WorldsFile  string `env:"WORLDS_FILE"`
	AdminUserID uint64 `env:"ADMIN_USER_ID"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ChargeCapacity <= 0 {
		errs = append(errs, errors.New("CHARGE_CAPACITY must be > 0"))
	}
	if c.ChargeRegenInterval <= 0 {
		errs = append(errs, errors.New("CHARGE_REGEN_INTERVAL must be > 0"))
	}
	if c.InitialCharges != nil && (*c.InitialCharges < 0 || *c.InitialCharges > c.ChargeCapacity) {
		errs = append(errs, fmt.Errorf("CHARGE_INITIAL must be within 0..%d", c.ChargeCapacity))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be > 0"))
	}
	switch c.Storage {
	case "memory", "sql":
	default:
		errs = append(errs, fmt.Errorf("STORAGE %q: want memory or sql", c.Storage))
	}
	switch c.ChargeBackend {
	case "memory", "sql", "redis":
	default:
		errs = append(errs, fmt.Errorf("CHARGE_BACKEND %q: want memory, sql or redis", c.ChargeBackend))
	}
	if c.ChargeBackend == "sql" && c.Storage != "sql" {
		errs = append(errs, errors.New("CHARGE_BACKEND=sql requires STORAGE=sql"))
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want mysql or sqlite", c.DBDriver))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) ChargePolicy() model.ChargePolicy {
	initial := c.ChargeCapacity
	if c.InitialCharges != nil {
		initial = *c.InitialCharges
	}
	return model.ChargePolicy{
		Capacity:       c.ChargeCapacity,
		RegenInterval:  c.ChargeRegenInterval,
		InitialCharges: initial,
	}
}
