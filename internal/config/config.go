// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Supported recognition engines
const (
	EngineGosseract    = "gosseract"
	EngineTesseractCLI = "tesseract-cli"
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Server ServerConfig `yaml:"server"`
	OCR    OCRConfig    `yaml:"ocr"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
	CORSOrigins  []string      `yaml:"cors_origins"` // "*" allows every origin
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine        string        `yaml:"engine"`         // "gosseract" or "tesseract-cli"
	Language      string        `yaml:"language"`       // Tesseract language code
	LineThreshold float64       `yaml:"line_threshold"` // max vertical gap inside a line, in pixels
	Workers       int           `yaml:"workers"`        // concurrent recognizer instances
	Timeout       time.Duration `yaml:"timeout"`
	MaxPixels     int           `yaml:"max_pixels"`
	TesseractPath string        `yaml:"tesseract_path"` // binary used by tesseract-cli
}

// CacheConfig configures the optional Redis result cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Port: 8080,
		Host: "0.0.0.0",
		Server: ServerConfig{
			MaxUploadMB:  10,
			CORSOrigins:  []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		OCR: OCRConfig{
			Engine:        EngineGosseract,
			Language:      "eng",
			LineThreshold: ocr.DefaultLineThreshold,
			Workers:       2,
			Timeout:       60 * time.Second,
			MaxPixels:     ocr.DefaultMaxPixels,
			TesseractPath: "tesseract",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides file values with environment variables if present
func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalidConfig, port)
		}
		c.Port = p
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Host = host
	}
	if engine := os.Getenv("OCR_ENGINE"); engine != "" {
		c.OCR.Engine = engine
	}
	if lang := os.Getenv("OCR_LANGUAGE"); lang != "" {
		c.OCR.Language = lang
	}
	if threshold := os.Getenv("OCR_LINE_THRESHOLD"); threshold != "" {
		v, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			return fmt.Errorf("%w: OCR_LINE_THRESHOLD=%q", ErrInvalidConfig, threshold)
		}
		c.OCR.LineThreshold = v
	}
	if workers := os.Getenv("OCR_WORKERS"); workers != "" {
		v, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("%w: OCR_WORKERS=%q", ErrInvalidConfig, workers)
		}
		c.OCR.Workers = v
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Cache.RedisURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		problems = append(problems, "server.max_upload_mb must be positive")
	}
	switch c.OCR.Engine {
	case EngineGosseract, EngineTesseractCLI:
	default:
		problems = append(problems, fmt.Sprintf("unknown ocr.engine %q", c.OCR.Engine))
	}
	if c.OCR.Language == "" {
		problems = append(problems, "ocr.language is required")
	}
	if c.OCR.LineThreshold < 0 {
		problems = append(problems, "ocr.line_threshold must not be negative")
	}
	if c.OCR.Workers <= 0 {
		problems = append(problems, "ocr.workers must be positive")
	}
	if c.OCR.Timeout <= 0 {
		problems = append(problems, "ocr.timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
