package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	ChallengeTTLSeconds    int
	SessionTTLSeconds      int
	CleanupIntervalMinutes int

	SolanaRPCURL      string
	SymbioteProgramID string
	KeypairBase58     string
	KeypairFile       string

	OpenAIAPIKey string
	OpenAIModel  string

	JupiterAPIBase            string
	JupiterFeeBps             int
	JupiterReferralFeeAccount string

	MetadataImageBaseURL string

	MinConfirmVolumeUSD float64
	GameTickSeconds     int

	APIRateLimitRequests    int
	APIRateLimitWindowMins  int
	AuthRateLimitRequests   int
	AuthRateLimitWindowMins int
	APICORSOrigins          []string
}

func Load() (*Config, error) {
	godotenv.Load("config.env")

	cfg := &Config{
		DBHost:     getEnvString("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBName:     getEnvString("DB_NAME", "symbiote_db"),
		DBUser:     getEnvString("DB_USER", "postgres"),
		DBPassword: getEnvString("DB_PASSWORD", ""),
		DBSSLMode:  getEnvString("DB_SSL_MODE", "disable"),

		ServerPort: getEnvString("SERVER_PORT", "3000"),
		ServerHost: getEnvString("SERVER_HOST", "localhost"),

		ChallengeTTLSeconds:    getEnvInt("AUTH_CHALLENGE_TTL_SECONDS", 300),
		SessionTTLSeconds:      getEnvInt("AUTH_SESSION_TTL_SECONDS", 86400),
		CleanupIntervalMinutes: getEnvInt("AUTH_CLEANUP_INTERVAL_MINUTES", 10),

		SolanaRPCURL:      getEnvString("SOLANA_RPC_URL", ""),
		SymbioteProgramID: getEnvString("SYMBIOTE_PROGRAM_ID", "Fg6PaFpoGXkYsidMpWxTWqkZq5Q8x8M9KXQvS6kR7d5k"),
		KeypairBase58:     getEnvString("SYMBIOTE_KEYPAIR_BASE58", ""),
		KeypairFile:       getEnvString("SYMBIOTE_KEYPAIR_FILE", "~/.config/solana/id.json"),

		OpenAIAPIKey: getEnvString("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnvString("OPENAI_MODEL", "gpt-4.1-mini"),

		JupiterAPIBase:            getEnvString("JUPITER_API_BASE", "https://quote-api.jup.ag/v6"),
		JupiterFeeBps:             getEnvInt("JUPITER_FEE_BPS", 50),
		JupiterReferralFeeAccount: getEnvString("JUPITER_REFERRAL_FEE_ACCOUNT", ""),

		MetadataImageBaseURL: getEnvString("METADATA_IMAGE_BASE_URL", "https://api.dicebear.com/9.x/shapes/svg"),

		MinConfirmVolumeUSD: getEnvFloat("MIN_CONFIRM_VOLUME_USD", 1),
		GameTickSeconds:     getEnvInt("GAME_TICK_SEC", 300),

		APIRateLimitRequests:    getEnvInt("API_RATE_LIMIT_REQUESTS", 120),
		APIRateLimitWindowMins:  getEnvInt("API_RATE_LIMIT_WINDOW_MINUTES", 1),
		AuthRateLimitRequests:   getEnvInt("AUTH_RATE_LIMIT_REQUESTS", 30),
		AuthRateLimitWindowMins: getEnvInt("AUTH_RATE_LIMIT_WINDOW_MINUTES", 1),
		APICORSOrigins:          getEnvStringSlice("API_CORS_ORIGINS", []string{"*"}),
	}

	if cfg.SolanaRPCURL == "" {
		return nil, fmt.Errorf("missing SOLANA_RPC_URL in environment")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY in environment")
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
