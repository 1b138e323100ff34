package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	SQLitePath             string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	GeminiAPIKey           string
	GeminiModel            string
	FraudMaxTotal          int64
	WarningTTLSeconds      int
	PresenceTimeoutSeconds int
	PendingOrderTTLMinutes int
	ExpirySweepSeconds     int
	SeedAdminUsername      string
	SeedAdminPassword      string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxTotal, err := strconv.ParseInt(getEnv("FRAUD_MAX_TOTAL", "500000"), 10, 64)
	if err != nil || maxTotal < 1 {
		maxTotal = 500000
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SQLitePath:             strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		GeminiAPIKey:           strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		FraudMaxTotal:          maxTotal,
		WarningTTLSeconds:      positiveInt("WARNING_TTL_SECONDS", 20),
		PresenceTimeoutSeconds: positiveInt("PRESENCE_TIMEOUT_SECONDS", 30),
		PendingOrderTTLMinutes: nonNegativeInt("PENDING_ORDER_TTL_MINUTES", 0),
		ExpirySweepSeconds:     positiveInt("EXPIRY_SWEEP_SECONDS", 60),
		SeedAdminUsername:      getEnv("SEED_ADMIN_USERNAME", "admin"),
		SeedAdminPassword:      strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) PendingOrderTTL() time.Duration {
	return time.Duration(c.PendingOrderTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func nonNegativeInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
