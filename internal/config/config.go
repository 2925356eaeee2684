package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config is process-wide configuration, loaded from the environment with
// an optional .env file
type Config struct {
	MongoURI  string
	MongoDB   string
	RedisAddr string
	Port      string
	JWTSecret string
}

// Load reads configuration, applying defaults for anything unset
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	return &Config{
		MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:   getEnv("MONGO_DB", "codecollab"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
