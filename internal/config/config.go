// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment key.
const Prefix = "SIGNLEARN_"

type Config struct {
	HTTPAddr         string
	InferenceURL     string
	InferenceTimeout time.Duration
	WindowSize       int
	DBPath           string
	DatabaseURL      string
	StaticDir        string
	LogLevel         string
	CameraID         int
	MotionThreshold  float64
	HookCommand      string
	HookTimeout      time.Duration
}

// Load reads envFile (".env" when empty) if it exists, then builds a Config
// from SIGNLEARN_* variables. A missing default .env file is not an error.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		InferenceURL: getEnv("INFERENCE_URL", "http://localhost:8000/predict"),
		DBPath:       getEnv("DB_PATH", defaultDBPath()),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StaticDir:    getEnv("STATIC_DIR", "web/static"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		HookCommand:  getEnv("HOOK_COMMAND", ""),
	}

	var err error
	if cfg.InferenceTimeout, err = getEnvDuration("INFERENCE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WindowSize, err = getEnvInt("WINDOW_SIZE", 30); err != nil {
		return nil, err
	}
	if cfg.CameraID, err = getEnvInt("CAMERA_ID", 0); err != nil {
		return nil, err
	}
	if cfg.MotionThreshold, err = getEnvFloat("MOTION_THRESHOLD", 1.0); err != nil {
		return nil, err
	}
	if cfg.HookTimeout, err = getEnvDuration("HOOK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("inference timeout must be positive, got %s", c.InferenceTimeout)
	}
	if c.InferenceURL == "" {
		return errors.New("inference url is empty")
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "signlearn.db"
	}
	return filepath.Join(home, ".signlearn", "signlearn.db")
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(Prefix + key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(Prefix + key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", Prefix, key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value, ok := os.LookupEnv(Prefix + key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", Prefix, key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(Prefix + key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", Prefix, key, err)
	}
	return d, nil
}
