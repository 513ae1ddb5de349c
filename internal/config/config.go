// Package config loads the server configuration from an HCL file and
// SHUTTERSCOPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Roles a configured user may hold.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the resolved server configuration.
type Config struct {
	Listen      string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string
	RateLimit   RateLimit
	Cache       Cache
	Users       map[string]User
}

// RateLimit configures the per-IP token bucket.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// Cache configures the statistics snapshot cache.
type Cache struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// User is a login declared in the config file.
type User struct {
	Name         string
	PasswordHash string
	Role         string
}

// file mirrors the HCL layout:
//
//	listen       = ":8080"
//	database_url = "sqlite:///var/lib/shutterscope/results.db"
//	jwt_secret   = "change-me"
//	token_ttl    = "1h"
//	log_level    = "info"
//
//	rate_limit {
//	  requests_per_second = 10
//	  burst               = 20
//	}
//
//	cache {
//	  backend    = "redis"
//	  ttl        = "30s"
//	  redis_addr = "localhost:6379"
//	}
//
//	user "admin" {
//	  password_hash = "$2a$10$..."
//	  role          = "admin"
//	}
type file struct {
	Listen      string        `hcl:"listen,optional"`
	DatabaseURL string        `hcl:"database_url,optional"`
	JWTSecret   string        `hcl:"jwt_secret,optional"`
	TokenTTL    string        `hcl:"token_ttl,optional"`
	LogLevel    string        `hcl:"log_level,optional"`
	RateLimit   *rateLimitHCL `hcl:"rate_limit,block"`
	Cache       *cacheHCL     `hcl:"cache,block"`
	Users       []userHCL     `hcl:"user,block"`
}

type rateLimitHCL struct {
	RequestsPerSecond float64 `hcl:"requests_per_second,optional"`
	Burst             int     `hcl:"burst,optional"`
}

type cacheHCL struct {
	Backend       string `hcl:"backend,optional"`
	TTL           string `hcl:"ttl,optional"`
	RedisAddr     string `hcl:"redis_addr,optional"`
	RedisPassword string `hcl:"redis_password,optional"`
	RedisDB       int    `hcl:"redis_db,optional"`
}

type userHCL struct {
	Name         string `hcl:"name,label"`
	PasswordHash string `hcl:"password_hash"`
	Role         string `hcl:"role,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		DatabaseURL: "sqlite://shutterscope.db",
		TokenTTL:    time.Hour,
		LogLevel:    "info",
		RateLimit:   RateLimit{RequestsPerSecond: 10, Burst: 20},
		Cache:       Cache{Backend: CacheMemory, TTL: 30 * time.Second},
		Users:       map[string]User{},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decode(src, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes HCL source over the defaults without touching the
// environment.
func Parse(src []byte, filename string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(src, filename); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(src []byte, filename string) error {
	var f file
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		var diags hcl.Diagnostics
		if errors.As(err, &diags) {
			for _, diag := range diags {
				if diag.Severity == hcl.DiagError {
					return fmt.Errorf("config error at %s: %s", diag.Subject, diag.Detail)
				}
			}
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if f.Listen != "" {
		c.Listen = f.Listen
	}
	if f.DatabaseURL != "" {
		c.DatabaseURL = f.DatabaseURL
	}
	if f.JWTSecret != "" {
		c.JWTSecret = f.JWTSecret
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.TokenTTL != "" {
		d, err := time.ParseDuration(f.TokenTTL)
		if err != nil {
			return fmt.Errorf("token_ttl: %w", err)
		}
		c.TokenTTL = d
	}
	if rl := f.RateLimit; rl != nil {
		if rl.RequestsPerSecond != 0 {
			c.RateLimit.RequestsPerSecond = rl.RequestsPerSecond
		}
		if rl.Burst != 0 {
			c.RateLimit.Burst = rl.Burst
		}
	}
	if ch := f.Cache; ch != nil {
		if ch.Backend != "" {
			c.Cache.Backend = ch.Backend
		}
		if ch.TTL != "" {
			d, err := time.ParseDuration(ch.TTL)
			if err != nil {
				return fmt.Errorf("cache ttl: %w", err)
			}
			c.Cache.TTL = d
		}
		c.Cache.RedisAddr = ch.RedisAddr
		c.Cache.RedisPassword = ch.RedisPassword
		c.Cache.RedisDB = ch.RedisDB
	}
	for _, u := range f.Users {
		if _, dup := c.Users[u.Name]; dup {
			return fmt.Errorf("user %q declared twice", u.Name)
		}
		role := u.Role
		if role == "" {
			role = RoleViewer
		}
		c.Users[u.Name] = User{Name: u.Name, PasswordHash: u.PasswordHash, Role: role}
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Listen = GetString("SHUTTERSCOPE_LISTEN", c.Listen)
	c.DatabaseURL = GetString("SHUTTERSCOPE_DATABASE_URL", c.DatabaseURL)
	c.JWTSecret = GetString("SHUTTERSCOPE_JWT_SECRET", c.JWTSecret)
	c.LogLevel = GetString("SHUTTERSCOPE_LOG_LEVEL", c.LogLevel)
	if addr := GetString("SHUTTERSCOPE_REDIS_ADDR", ""); addr != "" {
		c.Cache.Backend = CacheRedis
		c.Cache.RedisAddr = addr
	}
	c.Cache.RedisPassword = GetString("SHUTTERSCOPE_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = GetInt("SHUTTERSCOPE_REDIS_DB", c.Cache.RedisDB)
	if v := GetString("SHUTTERSCOPE_CACHE_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTTERSCOPE_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required (or set SHUTTERSCOPE_JWT_SECRET)")
	}
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit values must be positive")
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache backend redis needs redis_addr")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for name, u := range c.Users {
		if u.PasswordHash == "" {
			return fmt.Errorf("user %q has no password_hash", name)
		}
		if u.Role != RoleAdmin && u.Role != RoleViewer {
			return fmt.Errorf("user %q has unknown role %q", name, u.Role)
		}
	}
	return nil
}

// GetString retrieves an environment variable or returns fallback.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
