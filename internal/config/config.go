package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"` // empty disables the health server

	Env      string `yaml:"env"`       // "dev" | "prod"
	LogLevel string `yaml:"log_level"` // debug | info | warn | error

	// Storage
	Store  string `yaml:"store"`   // "memory" | "sqlite"
	DBPath string `yaml:"db_path"` // e.g. "./data/facelocker.db"

	// Lockers are provisioned at startup. LockerNumbers wins over LockerCount.
	LockerCount   int   `yaml:"locker_count"`
	LockerNumbers []int `yaml:"locker_numbers"`

	// Matching
	MatchTolerance   float64 `yaml:"match_tolerance"`
	VectorDimensions int     `yaml:"vector_dimensions"`

	// Failed-attempt limiting; empty RedisURL disables it.
	RedisURL          string        `yaml:"redis_url"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	AttemptWindow     time.Duration `yaml:"attempt_window"`

	AccessLogLimit int `yaml:"access_log_limit"`
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("FACELOCKER_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	store := strings.ToLower(getenvDefault("FACELOCKER_STORE", "sqlite"))
	if store != "memory" && store != "sqlite" {
		store = "sqlite"
	}

	return Config{
		HTTPAddr: getenvDefault("FACELOCKER_HTTP_ADDR", ":8080"),
		GRPCAddr: os.Getenv("FACELOCKER_GRPC_ADDR"),

		Env:      env,
		LogLevel: getenvDefault("FACELOCKER_LOG_LEVEL", "info"),

		Store:  store,
		DBPath: getenvDefault("FACELOCKER_DB_PATH", "./data/facelocker.db"),

		LockerCount:   getenvInt("FACELOCKER_LOCKERS", 10),
		LockerNumbers: splitInts(os.Getenv("FACELOCKER_LOCKER_NUMBERS")),

		MatchTolerance:   getenvFloat("FACELOCKER_MATCH_TOLERANCE", 0.6),
		VectorDimensions: getenvInt("FACELOCKER_VECTOR_DIMENSIONS", 128),

		RedisURL:          os.Getenv("FACELOCKER_REDIS_URL"),
		MaxFailedAttempts: getenvInt("FACELOCKER_MAX_FAILED_ATTEMPTS", 5),
		AttemptWindow:     getenvDuration("FACELOCKER_FAILED_ATTEMPT_WINDOW", 5*time.Minute),

		AccessLogLimit: getenvInt("FACELOCKER_ACCESS_LOG_LIMIT", 50),
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	if c.Store != "memory" && c.Store != "sqlite" {
		return fmt.Errorf("store must be memory or sqlite, got %q", c.Store)
	}
	if c.Store == "sqlite" && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required for the sqlite store")
	}
	if c.MatchTolerance < 0 {
		return fmt.Errorf("match_tolerance must not be negative")
	}
	if c.VectorDimensions <= 0 {
		return fmt.Errorf("vector_dimensions must be positive")
	}
	for _, n := range c.LockerNumbers {
		if n <= 0 {
			return fmt.Errorf("locker number %d must be positive", n)
		}
	}
	return nil
}

// Lockers returns the locker numbers to provision: LockerNumbers when set,
// otherwise 1..LockerCount.
func (c Config) Lockers() []int {
	if len(c.LockerNumbers) > 0 {
		return c.LockerNumbers
	}
	out := make([]int, 0, c.LockerCount)
	for n := 1; n <= c.LockerCount; n++ {
		out = append(out, n)
	}
	return out
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitInts parses a CSV of positive integers, skipping anything else.
func splitInts(v string) []int {
	var out []int
	for _, p := range splitCSV(v) {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
