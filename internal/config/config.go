package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	ComputeParallelism int           `envconfig:"COMPUTE_PARALLELISM" default:"8"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
