package configs

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env outside Railway; on Railway the platform injects
// the environment directly.
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" {
		slog.Info("running on Railway, using system env")
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env not found, using system env")
		return
	}
	slog.Info(".env loaded")
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || strings.TrimSpace(value) == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return strings.TrimSpace(value)
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(GetEnv(key)); err == nil {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(GetEnv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(GetEnv(key)); err == nil {
		return v
	}
	return def
}

// getDuration accepts Go durations ("15s") or plain seconds ("15").
func getDuration(key string, def time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
