package config

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds the service configuration, loaded from the environment.
type Config struct {
	Port          string
	MongoURI      string
	MongoDatabase string

	GeminiAPIKey     string
	ElevenLabsAPIKey string

	JWTSecret     string
	CaptureLocale string
}

// Load reads configuration from the environment, loading a .env file first
// if one is present.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "wayfarer"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		CaptureLocale: getEnv("CAPTURE_LOCALE", "en-US"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
