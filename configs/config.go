// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every tunable the engine consumes. It is built once in main
// and passed down by reference; nothing reads the environment after startup.
type Config struct {
	// Server
	Port           string
	AllowedOrigins string

	// MongoDB
	MongoURI    string
	MongoDBName string

	// Vision provider selection
	VisionProvider string // "gemini" or "openai"

	// Gemini configuration (per-mode model selection)
	GeminiAPIKey       string
	GeminiModelFast    string
	GeminiModelPrecise string

	// OpenAI-compatible provider configuration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Per-mode extraction timeouts, in seconds
	ExtractTimeoutFast    int
	ExtractTimeoutPrecise int
	TotalsTimeout         int

	// Bounded concurrency for outbound vision calls
	MaxConcurrentFast    int
	MaxConcurrentPrecise int

	// Provider rate limiting (token bucket)
	RateLimitTokens        int
	RateLimitRefillSeconds int

	// Segmentation
	SegmentOverlapPx     int
	MaxImageWidthFast    int
	MaxImageWidthPrecise int

	// Reconciliation
	ReconcileThresholdCents int64
	DefaultCurrency         string

	// Token pricing (per 1M tokens in USD), for cost accounting
	InputPricePerMillion  float64
	OutputPricePerMillion float64

	// Result cache
	CacheTTLMinutes int
}

// Load reads configuration from environment variables, honoring a local .env
// file when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		// Empty MONGO_URI runs the engine without persistence.
		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "domusplus"),

		VisionProvider: getEnv("VISION_PROVIDER", "gemini"),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelFast:    getEnv("GEMINI_MODEL_FAST", "gemini-2.5-flash-lite"),
		GeminiModelPrecise: getEnv("GEMINI_MODEL_PRECISE", "gemini-2.5-flash"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		ExtractTimeoutFast:    getEnvInt("EXTRACT_TIMEOUT_FAST", 45),
		ExtractTimeoutPrecise: getEnvInt("EXTRACT_TIMEOUT_PRECISE", 120),
		TotalsTimeout:         getEnvInt("TOTALS_TIMEOUT", 45),

		MaxConcurrentFast:    getEnvInt("MAX_CONCURRENT_FAST", 4),
		MaxConcurrentPrecise: getEnvInt("MAX_CONCURRENT_PRECISE", 2),

		RateLimitTokens:        getEnvInt("RATE_LIMIT_TOKENS", 12),
		RateLimitRefillSeconds: getEnvInt("RATE_LIMIT_REFILL_SECONDS", 5),

		SegmentOverlapPx:     getEnvInt("SEGMENT_OVERLAP_PX", 250),
		MaxImageWidthFast:    getEnvInt("MAX_IMAGE_WIDTH_FAST", 1400),
		MaxImageWidthPrecise: getEnvInt("MAX_IMAGE_WIDTH_PRECISE", 1700),

		ReconcileThresholdCents: int64(getEnvInt("RECONCILE_THRESHOLD_CENTS", 50)),
		DefaultCurrency:         getEnv("DEFAULT_CURRENCY", "MXN"),

		InputPricePerMillion:  getEnvFloat("INPUT_PRICE_PER_MILLION", 0.30),
		OutputPricePerMillion: getEnvFloat("OUTPUT_PRICE_PER_MILLION", 2.50),

		CacheTTLMinutes: getEnvInt("CACHE_TTL_MINUTES", 15),
	}

	log.Println("✓ Configuration loaded successfully")
	return cfg
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
