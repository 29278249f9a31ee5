package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL     string        `yaml:"api_url"`
	DBPath         string        `yaml:"db_path"`
	ListenAddr     string        `yaml:"listen_addr"`
	CaptureDir     string        `yaml:"capture_dir"`
	CameraDevice   string        `yaml:"camera_device"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	LogFile        string        `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		APIBaseURL:     "https://unlabel.onrender.com/api",
		DBPath:         defaultDBPath(),
		ListenAddr:     "127.0.0.1:8080",
		CaptureDir:     ".",
		CameraDevice:   "/dev/video0",
		FFmpegPath:     "ffmpeg",
		RequestTimeout: 60 * time.Second,
		LogLevel:       "warn",
		LogFormat:      "json",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// UNLABEL_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("UNLABEL_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.APIBaseURL = getEnv("UNLABEL_API_URL", cfg.APIBaseURL)
	cfg.DBPath = getEnv("UNLABEL_DB_PATH", cfg.DBPath)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.CaptureDir = getEnv("CAPTURE_DIR", cfg.CaptureDir)
	cfg.CameraDevice = getEnv("CAMERA_DEVICE", cfg.CameraDevice)
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	if raw, ok := os.LookupEnv("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", raw, err)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "unlabel.db"
	}
	return filepath.Join(dir, "unlabel", "unlabel.db")
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}
