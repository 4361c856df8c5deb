package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Authority AuthorityConfig `json:"authority"`
	Tenants   TenantsConfig   `json:"tenants"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	OpsDB     OpsDBConfig     `json:"ops_db"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type AuthorityConfig struct {
	// One or more base URLs of tenant authority replicas.
	BaseURLs        []string `json:"base_urls"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	CooldownSeconds int      `json:"cooldown_seconds"`
}

func (a AuthorityConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AuthorityConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

type TenantsConfig struct {
	// Printf-style DSN with a single %s for the tenant database name,
	// e.g. "host=localhost user=gateway password=secret dbname=%s sslmode=disable"
	DSNTemplate           string `json:"dsn_template"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
	IdleTTLMinutes        int    `json:"idle_ttl_minutes"`
	SweepIntervalMinutes  int    `json:"sweep_interval_minutes"`
	MaxOpenConns          int    `json:"max_open_conns"`
	MaxIdleConns          int    `json:"max_idle_conns"`
}

func (t TenantsConfig) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutSeconds) * time.Second
}

func (t TenantsConfig) IdleTTL() time.Duration {
	return time.Duration(t.IdleTTLMinutes) * time.Minute
}

func (t TenantsConfig) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalMinutes) * time.Minute
}

type PlanLimit struct {
	Plan            string `json:"plan"`
	RequestsPerHour int    `json:"requests_per_hour"`
}

type BurstConfig struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

func (b BurstConfig) Window() time.Duration {
	return time.Duration(b.WindowSeconds) * time.Second
}

type RateLimitConfig struct {
	Burst BurstConfig `json:"burst"`
	Plans []PlanLimit `json:"plans"`
	// Pre-auth sustained ceiling per client IP. 0 disables the check.
	AnonymousRequestsPerHour int `json:"anonymous_requests_per_hour"`
	// In-process spike pre-filter. 0 disables it.
	SpikeRPS   float64 `json:"spike_rps"`
	SpikeBurst int     `json:"spike_burst"`
}

type OpsDBConfig struct {
	// Optional DSN for the gateway's own request-log database.
	// Request logging is disabled when empty.
	DSN           string `json:"dsn"`
	LogBufferSize int    `json:"log_buffer_size"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Secrets and deployment-specific values can override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AUTHORITY_BASE_URLS"); v != "" {
		c.Authority.BaseURLs = splitAndTrim(v)
	}
	if v := os.Getenv("TENANT_DSN_TEMPLATE"); v != "" {
		c.Tenants.DSNTemplate = v
	}
	if v := os.Getenv("OPS_DB_DSN"); v != "" {
		c.OpsDB.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == "" {
		c.Redis.Port = "6379"
	}
	if c.Authority.TimeoutSeconds <= 0 {
		c.Authority.TimeoutSeconds = 5
	}
	if c.Authority.CooldownSeconds <= 0 {
		c.Authority.CooldownSeconds = 10
	}
	if c.Tenants.ConnectTimeoutSeconds <= 0 {
		c.Tenants.ConnectTimeoutSeconds = 10
	}
	if c.Tenants.IdleTTLMinutes <= 0 {
		c.Tenants.IdleTTLMinutes = 30
	}
	if c.Tenants.SweepIntervalMinutes <= 0 {
		c.Tenants.SweepIntervalMinutes = 5
	}
	if c.Tenants.MaxOpenConns <= 0 {
		c.Tenants.MaxOpenConns = 10
	}
	if c.Tenants.MaxIdleConns <= 0 {
		c.Tenants.MaxIdleConns = 2
	}
	if c.RateLimit.Burst.Limit <= 0 {
		c.RateLimit.Burst.Limit = 20
	}
	if c.RateLimit.Burst.WindowSeconds <= 0 {
		c.RateLimit.Burst.WindowSeconds = 10
	}
	if len(c.RateLimit.Plans) == 0 {
		c.RateLimit.Plans = []PlanLimit{
			{Plan: "free", RequestsPerHour: 100},
			{Plan: "starter", RequestsPerHour: 1000},
			{Plan: "professional", RequestsPerHour: 10000},
			{Plan: "enterprise", RequestsPerHour: 100000},
		}
	}
	if c.OpsDB.LogBufferSize <= 0 {
		c.OpsDB.LogBufferSize = 1000
	}
}

func (c *Config) validate() error {
	if len(c.Authority.BaseURLs) == 0 {
		return fmt.Errorf("config: at least one authority base URL is required")
	}
	if c.Tenants.DSNTemplate == "" {
		return fmt.Errorf("config: tenants.dsn_template is required")
	}
	if !strings.Contains(c.Tenants.DSNTemplate, "%s") {
		return fmt.Errorf("config: tenants.dsn_template must contain a %%s placeholder for the database name")
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
