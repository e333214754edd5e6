// Package config loads process settings from the environment, reading a
// local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// DefaultProgramID is the address the crowdsale program was deployed under.
const DefaultProgramID = "HciPz9qoNEBBWga6KWomnDovANbQWnTAT5iFSNW7Ji3K"

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Server captures the settings of the API process.
type Server struct {
	Port          string
	Env           string
	ProgramID     solana.PublicKey
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// CLI captures the settings of the command line client.
type CLI struct {
	APIURL     string
	PrivateKey solana.PrivateKey
}

// Development reports whether the server runs with development logging.
func (s Server) Development() bool {
	return s.Env == "development"
}

// LoadServer reads the server settings. Missing values fall back to defaults.
func LoadServer() (Server, error) {
	_ = godotenv.Load() // best-effort

	cfg := Server{
		Port:          getenv("PORT", "8081"),
		Env:           getenv("APP_ENV", "production"),
		Storage:       strings.ToLower(getenv("STORAGE", StorageMemory)),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:   getenv("REDIS_PREFIX", "crowdsale"),
	}

	programID, err := solana.PublicKeyFromBase58(getenv("PROGRAM_ID", DefaultProgramID))
	if err != nil {
		return Server{}, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	cfg.ProgramID = programID

	db, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		return Server{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = db

	switch cfg.Storage {
	case StorageMemory, StorageRedis:
	default:
		return Server{}, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
	return cfg, nil
}

// LoadCLI reads the client settings. The private key is required.
func LoadCLI() (CLI, error) {
	_ = godotenv.Load() // best-effort

	cfg := CLI{APIURL: getenv("CROWDSALE_API_URL", "http://localhost:8081")}
	b58 := os.Getenv("CROWDSALE_PRIVATE_KEY")
	if b58 == "" {
		return cfg, errors.New("CROWDSALE_PRIVATE_KEY not set")
	}
	key, err := solana.PrivateKeyFromBase58(b58)
	if err != nil {
		return cfg, fmt.Errorf("invalid CROWDSALE_PRIVATE_KEY: %w", err)
	}
	cfg.PrivateKey = key
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
