package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	LocalDBPath           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CacheTTLSeconds       int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ReceiptBaseURL        string
	LogLevel              string
	AtomicStockDecrement  bool
	BreakerMaxFailures    int
	BreakerOpenSeconds    int
	SeedDemo              bool
	TerminalIdleMinutes   int
	MaxTerminalsPerUser   int
}

// Load reads the environment. A .env file in the working directory is
// applied first when present; variables already set win over it.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL := positiveInt("CACHE_TTL_SECONDS", 300)
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	atomicStock, err := strconv.ParseBool(getEnv("ATOMIC_STOCK_DECREMENT", "true"))
	if err != nil {
		atomicStock = true
	}
	seedDemo, _ := strconv.ParseBool(getEnv("SEED_DEMO", "false"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		LocalDBPath:           getEnv("LOCAL_DB_PATH", "posengine.db"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		CacheTTLSeconds:       cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ReceiptBaseURL:        strings.TrimRight(getEnv("RECEIPT_BASE_URL", "http://127.0.0.1:8080"), "/"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AtomicStockDecrement:  atomicStock,
		BreakerMaxFailures:    positiveInt("BREAKER_MAX_FAILURES", 5),
		BreakerOpenSeconds:    positiveInt("BREAKER_OPEN_SECONDS", 15),
		SeedDemo:              seedDemo,
		TerminalIdleMinutes:   positiveInt("TERMINAL_IDLE_MINUTES", 720),
		MaxTerminalsPerUser:   positiveInt("MAX_TERMINALS_PER_USER", 8),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) TerminalIdleTTL() time.Duration {
	return time.Duration(c.TerminalIdleMinutes) * time.Minute
}

func (c Config) BreakerOpenFor() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
