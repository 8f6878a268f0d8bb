// Package config reads the process configuration from the environment,
// loading a local .env file first when one exists.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every setting the process needs.
type Config struct {
	MongoURL     string
	DatabaseName string
	MaxPageSize  int64
	DataDir      string
}

// Load reads the configuration. Missing variables fall back to defaults
// suitable for local development; a missing .env is not an error.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		MongoURL:     getenv("MONGO_URL", "mongodb://localhost:27017"),
		DatabaseName: getenv("DATABASE_NAME", "enemdb"),
		MaxPageSize:  getenvInt("MAX_PAGE_SIZE", 1000),
		DataDir:      getenv("DATA_DIR", "data"),
	}
}

// ParticipantsFile is the default participants source inside DataDir.
func (c Config) ParticipantsFile() string {
	return filepath.Join(c.DataDir, "participants.csv")
}

// ResultsFile is the default results source inside DataDir.
func (c Config) ResultsFile() string {
	return filepath.Join(c.DataDir, "results.csv")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
