package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisAddr   string
	Port        string
	Env         string
	AuthKey     string
	Host        string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] No .env file found, relying on system environment variables")
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		AuthKey:     getEnv("AUTH_KEY", ""),
		Host:        getEnv("HOST", "localhost"),
	}

	log.Printf("[CONFIG] Environment: %s", cfg.Env)
	log.Printf("[CONFIG] Target Port: %s", cfg.Port)

	if cfg.DatabaseURL == "" {
		log.Fatal("[CONFIG] CRITICAL: DATABASE_URL is missing. Server cannot start.")
	}
	log.Printf("[CONFIG] Database URL detected: %s", maskDBSource(cfg.DatabaseURL))

	if cfg.AuthKey == "" {
		log.Fatal("[CONFIG] CRITICAL: AUTH_KEY (JWT secret) is missing. Security cannot be initialized.")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		log.Printf("[CONFIG] Variable %s not found, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[1]
}
