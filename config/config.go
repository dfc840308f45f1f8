package config

import (
	"fmt"
	"time"

	pkgconfig "contentplanner/pkg/config"
)

type Config struct {
	Server    pkgconfig.ServerConfig    `yaml:"server"`
	DB        pkgconfig.DBConfig        `yaml:"db"`
	MQ        pkgconfig.MQConfig        `yaml:"mq"`
	Redis     pkgconfig.RedisConfig     `yaml:"redis"`
	JWT       pkgconfig.JWTConfig       `yaml:"jwt"`
	AI        pkgconfig.AIConfig        `yaml:"ai"`
	Store     pkgconfig.StoreConfig     `yaml:"store"`
	OTel      pkgconfig.OTelConfig      `yaml:"otel"`
	Log       pkgconfig.LogConfig       `yaml:"log"`
	CORS      pkgconfig.CORSConfig      `yaml:"cors"`
	Scheduler pkgconfig.SchedulerConfig `yaml:"scheduler"`
}

// Load reads config/base.yaml plus the CONFIG_ENV overlay from dir, then applies
// environment overrides (production uses env vars only for secrets and hosts).
func Load(dir string) (*Config, error) {
	cfg := Defaults()
	if err := pkgconfig.LoadLayered(pkgconfig.GetConfigEnv(), dir, cfg); err != nil {
		return nil, err
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideAIFromEnv(&cfg.AI)
	pkgconfig.OverrideStoreFromEnv(&cfg.Store)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the values used when a key is absent from every yaml layer.
func Defaults() *Config {
	return &Config{
		Server: pkgconfig.ServerConfig{Port: ":8080"},
		DB:     pkgconfig.DBConfig{Host: "localhost", Port: 5432, Name: "planner"},
		JWT:    pkgconfig.JWTConfig{TTL: 7 * 24 * time.Hour},
		AI: pkgconfig.AIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Store: pkgconfig.StoreConfig{Driver: "postgres"},
		OTel:  pkgconfig.OTelConfig{ServiceName: "contentplanner"},
		CORS:  pkgconfig.CORSConfig{AllowedOrigins: []string{"*"}},
		Scheduler: pkgconfig.SchedulerConfig{
			SessionReaper:  "@every 1m",
			OutboxReplay:   "@every 5m",
			SessionIdleTTL: 30 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (set JWT_SECRET)")
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}
