package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shoplens/gql-client/pkg/client"
	"github.com/shoplens/gql-client/pkg/ratelimit"
)

// ProxyConfig is the yaml configuration of the proxy daemon.
type ProxyConfig struct {
	Server struct {
		Addr           string `yaml:"addr"`
		ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	} `yaml:"server"`

	Observability struct {
		LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
		Pretty         bool   `yaml:"pretty"`          // console output instead of JSON
		PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
	} `yaml:"observability"`

	API struct {
		Endpoint    string  `yaml:"endpoint"`
		Token       string  `yaml:"token"`
		RequestCost float64 `yaml:"request_cost"`
	} `yaml:"api"`

	RateLimit struct {
		Capacity         int     `yaml:"capacity"`
		RefillRate       float64 `yaml:"refill_rate"`
		RefillIntervalMS int     `yaml:"refill_interval_ms"`
		MaxQueueDepth    int     `yaml:"max_queue_depth"`
	} `yaml:"rate_limit"`

	Cache struct {
		Backend   string `yaml:"backend"` // "memory" or "redis"
		RedisAddr string `yaml:"redis_addr"`
		TTLMS     int    `yaml:"ttl_ms"`
	} `yaml:"cache"`

	Retry struct {
		MaxRetries  int `yaml:"max_retries"`
		BaseDelayMS int `yaml:"base_delay_ms"`
		MaxDelayMS  int `yaml:"max_delay_ms"`
		JitterMS    int `yaml:"jitter_ms"`
	} `yaml:"retry"`
}

// LoadConfig reads the yaml file and applies environment overrides for the
// values that differ between deployments of the same config file.
func LoadConfig(path string) (*ProxyConfig, error) {
	cfg := &ProxyConfig{}
	cfg.Server.Addr = ":8080"
	cfg.Observability.LogLevel = "info"
	cfg.Observability.PrometheusPath = "/metrics"
	cfg.Cache.Backend = "memory"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("GQL_PROXY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GQL_API_ENDPOINT"); v != "" {
		cfg.API.Endpoint = v
	}
	if v := os.Getenv("GQL_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("GQL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}

	if cfg.API.Endpoint == "" {
		return nil, fmt.Errorf("api.endpoint is required (or set GQL_API_ENDPOINT)")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		return nil, fmt.Errorf("cache.redis_addr is required for the redis backend")
	}

	return cfg, nil
}

// clientConfig assembles the library configuration from the proxy config.
func (p *ProxyConfig) clientConfig() client.Config {
	cfg := client.DefaultConfig(p.API.Endpoint, p.API.Token)

	if p.API.RequestCost > 0 {
		cfg.RequestCost = p.API.RequestCost
	}
	if p.RateLimit.Capacity > 0 {
		cfg.RateLimit = ratelimit.Config{
			Capacity:       p.RateLimit.Capacity,
			RefillRate:     p.RateLimit.RefillRate,
			RefillInterval: time.Duration(p.RateLimit.RefillIntervalMS) * time.Millisecond,
			MaxQueueDepth:  p.RateLimit.MaxQueueDepth,
		}
	}
	if p.Cache.TTLMS > 0 {
		cfg.CacheTTL = time.Duration(p.Cache.TTLMS) * time.Millisecond
	}
	if p.Retry.MaxRetries > 0 {
		cfg.Retry.MaxRetries = p.Retry.MaxRetries
	}
	if p.Retry.BaseDelayMS > 0 {
		cfg.Retry.BaseDelay = time.Duration(p.Retry.BaseDelayMS) * time.Millisecond
	}
	if p.Retry.MaxDelayMS > 0 {
		cfg.Retry.MaxDelay = time.Duration(p.Retry.MaxDelayMS) * time.Millisecond
	}
	if p.Retry.JitterMS > 0 {
		cfg.Retry.Jitter = time.Duration(p.Retry.JitterMS) * time.Millisecond
	}

	return cfg
}
