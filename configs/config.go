// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEYS []string
	MODEL_NAME      string
	LLM_TIMEOUT     time.Duration

	// Gemini request pacing (token bucket shared by all credentials)
	LLM_RATE_LIMIT_TOKENS int
	LLM_RATE_LIMIT_REFILL time.Duration

	// Gemini Pricing Configuration (per 1M tokens in USD)
	GEMINI_INPUT_PRICE_PER_MILLION  float64
	GEMINI_OUTPUT_PRICE_PER_MILLION float64

	// OCR providers
	OCR_PROVIDER       string // "gemini", "mistral" or "tesseract"
	MISTRAL_API_KEY    string
	MISTRAL_MODEL_NAME string
	TESSERACT_LANG     string

	// Server Configuration
	PORT            string
	ALLOWED_ORIGINS string
	LOG_LEVEL       string
	LOG_FORMAT      string

	// Document handling
	MIN_TEXT_CHARS      int
	MAX_UPLOAD_BYTES    int64
	MAX_IMAGE_BYTES     int64
	MAX_IMAGE_DIMENSION int
	CLAUSE_LIBRARY_PATH string

	// MongoDB Configuration (empty URI selects the in-memory stores)
	MONGO_URI     string
	MONGO_DB_NAME string

	// Redis backs the per-user analysis rate limit
	REDIS_ADDR              string
	REDIS_PASSWORD          string
	REDIS_DB                int
	ANALYZE_RATE_PER_MINUTE int

	// Messaging and tracing
	RABBITMQ_URL  string
	OTLP_ENDPOINT string

	// Identity provider
	AUTH_ISSUER    string
	AUTH_AUDIENCE  string
	AUTH_JWKS_URL  string
	ADMIN_USER_IDS []string

	// Payments
	PAYMENT_WEBHOOK_SECRET string
	PAYMENT_VARIANT_TIERS  map[string]string
	STRIPE_SECRET_KEY      string
	STRIPE_WEBHOOK_SECRET  string
	STRIPE_PRICE_TIERS     map[string]string
	FRONTEND_URL           string
	PAYMENT_TIMEOUT        time.Duration

	// Quota enforcement: false keeps check-then-increment, true reserves with a conditional update
	STRICT_QUOTA bool
)

const firebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Required: at least one Gemini API key
	GEMINI_API_KEYS = getEnvList("GEMINI_API_KEYS")
	if len(GEMINI_API_KEYS) == 0 {
		if key := getEnv("GEMINI_API_KEY", ""); key != "" {
			GEMINI_API_KEYS = []string{key}
		}
	}
	if len(GEMINI_API_KEYS) == 0 {
		log.Fatal("GEMINI_API_KEYS environment variable is required")
	}

	MODEL_NAME = getEnv("MODEL_NAME", "gemini-2.5-flash")
	LLM_TIMEOUT = getEnvDuration("LLM_TIMEOUT", 90*time.Second)
	LLM_RATE_LIMIT_TOKENS = getEnvInt("LLM_RATE_LIMIT_TOKENS", 12)
	LLM_RATE_LIMIT_REFILL = getEnvDuration("LLM_RATE_LIMIT_REFILL", 5*time.Second)

	GEMINI_INPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_INPUT_PRICE_PER_MILLION", 0.30)
	GEMINI_OUTPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_OUTPUT_PRICE_PER_MILLION", 2.50)

	OCR_PROVIDER = strings.ToLower(getEnv("OCR_PROVIDER", "tesseract"))
	MISTRAL_API_KEY = getEnv("MISTRAL_API_KEY", "")
	MISTRAL_MODEL_NAME = getEnv("MISTRAL_MODEL_NAME", "mistral-ocr-latest")
	TESSERACT_LANG = getEnv("TESSERACT_LANG", "eng")

	PORT = getEnv("PORT", "8081")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")
	LOG_LEVEL = getEnv("LOG_LEVEL", "info")
	LOG_FORMAT = getEnv("LOG_FORMAT", "json")

	MIN_TEXT_CHARS = getEnvInt("MIN_TEXT_CHARS", 40)
	MAX_UPLOAD_BYTES = int64(getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024))
	MAX_IMAGE_BYTES = int64(getEnvInt("MAX_IMAGE_BYTES", 5*1024*1024))
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)
	CLAUSE_LIBRARY_PATH = getEnv("CLAUSE_LIBRARY_PATH", "")

	MONGO_URI = getEnv("MONGO_URI", "")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "lease_analyzer")

	REDIS_ADDR = getEnv("REDIS_ADDR", "")
	REDIS_PASSWORD = getEnv("REDIS_PASSWORD", "")
	REDIS_DB = getEnvInt("REDIS_DB", 0)
	ANALYZE_RATE_PER_MINUTE = getEnvInt("ANALYZE_RATE_PER_MINUTE", 5)

	RABBITMQ_URL = getEnv("RABBITMQ_URL", "")
	OTLP_ENDPOINT = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	// Firebase ID tokens unless a generic OIDC issuer is configured
	projectID := getEnv("FIREBASE_PROJECT_ID", "")
	AUTH_ISSUER = getEnv("AUTH_ISSUER", "")
	AUTH_AUDIENCE = getEnv("AUTH_AUDIENCE", projectID)
	AUTH_JWKS_URL = getEnv("AUTH_JWKS_URL", "")
	if AUTH_ISSUER == "" && projectID != "" {
		AUTH_ISSUER = "https://securetoken.google.com/" + projectID
		if AUTH_JWKS_URL == "" {
			AUTH_JWKS_URL = firebaseJWKSURL
		}
	}
	ADMIN_USER_IDS = getEnvList("ADMIN_USER_IDS")

	PAYMENT_WEBHOOK_SECRET = getEnv("PAYMENT_WEBHOOK_SECRET", "")
	PAYMENT_VARIANT_TIERS = getEnvMap("PAYMENT_VARIANT_TIERS")
	STRIPE_SECRET_KEY = getEnv("STRIPE_SECRET_KEY", "")
	STRIPE_WEBHOOK_SECRET = getEnv("STRIPE_WEBHOOK_SECRET", "")
	STRIPE_PRICE_TIERS = getEnvMap("STRIPE_PRICE_TIERS")
	FRONTEND_URL = getEnv("FRONTEND_URL", "http://localhost:3000")
	PAYMENT_TIMEOUT = getEnvDuration("PAYMENT_TIMEOUT", 30*time.Second)

	STRICT_QUOTA = getEnvBool("STRICT_QUOTA", false)

	log.Printf("✓ Configuration loaded successfully (%d Gemini credential(s))", len(GEMINI_API_KEYS))
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvMap parses "k1:v1,k2:v2"
func getEnvMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvList(key) {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
