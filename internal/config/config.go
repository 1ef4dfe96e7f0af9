package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kapu/persona-script-go/internal/constants"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	OpenAI  OpenAIConfig
	Search  SearchConfig
	Redis   RedisConfig
	Capture CaptureConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Addr string
}

type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	MediaModel     string
	ThinkingBudget int // negative disables the thinking config
	Temperature    float32
}

type OpenAIConfig struct {
	APIKey         string
	EnableFallback bool
	DefaultModel   string
}

// SearchConfig holds the process-wide search credentials used when a session supplies none.
type SearchConfig struct {
	APIKey   string
	EngineID string
	Endpoint string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type CaptureConfig struct {
	MaxUploadMB int
}

func (c CaptureConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Gemini: GeminiConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			BaseURL:        getEnv("GEMINI_BASE_URL", ""),
			DefaultModel:   getEnv("GEMINI_DEFAULT_MODEL", constants.Models.Default),
			MediaModel:     getEnv("GEMINI_MEDIA_MODEL", constants.Models.Media),
			ThinkingBudget: getEnvInt("GEMINI_THINKING_BUDGET", constants.Models.ThinkingBudget),
			Temperature:    getEnvFloat("GEMINI_TEMPERATURE", constants.Temperatures.Session),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
			DefaultModel:   getEnv("OPENAI_DEFAULT_MODEL", constants.Models.DefaultOpenAI),
		},
		Search: SearchConfig{
			APIKey:   getEnv("GOOGLE_API_KEY", ""),
			EngineID: getEnv("GOOGLE_CSE_ID", ""),
			Endpoint: getEnv("GOOGLE_SEARCH_ENDPOINT", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Capture: CaptureConfig{
			MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 25),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.Gemini.DefaultModel == "" {
		return fmt.Errorf("GEMINI_DEFAULT_MODEL must not be empty")
	}
	if c.Gemini.Temperature < constants.TemperatureRange.Min || c.Gemini.Temperature > constants.TemperatureRange.Max {
		return fmt.Errorf("GEMINI_TEMPERATURE must be within [%.1f, %.1f], got %v",
			constants.TemperatureRange.Min, constants.TemperatureRange.Max, c.Gemini.Temperature)
	}
	if c.Capture.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Capture.MaxUploadMB)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	return nil
}

// ThinkingBudgetString renders the configured budget the way the session settings hold it.
func (g GeminiConfig) ThinkingBudgetString() string {
	if g.ThinkingBudget < 0 {
		return ""
	}
	return strconv.Itoa(g.ThinkingBudget)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}
