package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppMode      string
	APIBaseURL   string
	WebSocketURL string
	SessionToken string
	Upload       UploadConfig
	Transport    TransportConfig
	Typing       TypingConfig
}

type UploadConfig struct {
	MaxBytes          int64
	AllowedExtensions []string
}

type TransportConfig struct {
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
}

type TypingConfig struct {
	IdleTimeout  time.Duration
	ExpiryWindow time.Duration
}

var defaultAllowedExtensions = []string{
	"jpg", "jpeg", "png", "gif", "webp",
	"mp3", "wav", "ogg",
	"mp4", "webm", "mov",
	"pdf", "txt", "md", "csv", "doc", "docx",
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppMode:      getEnv("APP_MODE", "development"),
		APIBaseURL:   getEnv("WIDGET_API_URL", "http://localhost:8080"),
		WebSocketURL: getEnv("WIDGET_WS_URL", "ws://localhost:8080/ws"),
		SessionToken: getEnv("WIDGET_SESSION_TOKEN", ""),
		Upload: UploadConfig{
			MaxBytes:          getEnvAsInt64("UPLOAD_MAX_BYTES", 10<<20),
			AllowedExtensions: getEnvAsList("UPLOAD_ALLOWED_EXTENSIONS", defaultAllowedExtensions),
		},
		Transport: TransportConfig{
			ReconnectMinDelay: getEnvAsDuration("WS_RECONNECT_MIN_DELAY", 1*time.Second),
			ReconnectMaxDelay: getEnvAsDuration("WS_RECONNECT_MAX_DELAY", 30*time.Second),
			KeepaliveInterval: getEnvAsDuration("WS_KEEPALIVE_INTERVAL", 30*time.Second),
			WriteTimeout:      getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		},
		Typing: TypingConfig{
			IdleTimeout:  getEnvAsDuration("TYPING_IDLE_TIMEOUT", 3*time.Second),
			ExpiryWindow: getEnvAsDuration("TYPING_EXPIRY_WINDOW", 10*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
