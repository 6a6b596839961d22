// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// キャッシュ有効期間（分）の許容範囲。
const (
	MinCacheTTLMinutes = 1
	MaxCacheTTLMinutes = 1440
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Graph API
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphUserID       string
	GraphEndpoint     string
	GraphTokenURL     string

	// Calendar
	CalendarName string
	Timezone     string // IANAゾーン名。空文字列の場合はプロセスのローカルゾーン

	// Cache
	CacheTTL time.Duration

	// Category
	CategoriesFile         string
	CategoryReloadInterval time.Duration // 0でホットリロード無効

	// Fetch
	FetchTimeout time.Duration

	// Body
	SanitizeBody bool

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、およびCACHE_TTL_MINUTESが1〜1440分の
// 範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.GraphTenantID = os.Getenv("GRAPH_TENANT_ID")
	if cfg.GraphTenantID == "" {
		missing = append(missing, "GRAPH_TENANT_ID")
	}

	cfg.GraphClientID = os.Getenv("GRAPH_CLIENT_ID")
	if cfg.GraphClientID == "" {
		missing = append(missing, "GRAPH_CLIENT_ID")
	}

	cfg.GraphClientSecret = os.Getenv("GRAPH_CLIENT_SECRET")
	if cfg.GraphClientSecret == "" {
		missing = append(missing, "GRAPH_CLIENT_SECRET")
	}

	cfg.GraphUserID = os.Getenv("GRAPH_USER_ID")
	if cfg.GraphUserID == "" {
		missing = append(missing, "GRAPH_USER_ID")
	}

	cfg.CalendarName = os.Getenv("CALENDAR_NAME")
	if cfg.CalendarName == "" {
		missing = append(missing, "CALENDAR_NAME")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// キャッシュ有効期間は起動時に範囲検証する（期限切れ判定の前提となるため）
	ttlMinutes := getEnvInt("CACHE_TTL_MINUTES", 30)
	if ttlMinutes < MinCacheTTLMinutes || ttlMinutes > MaxCacheTTLMinutes {
		return nil, fmt.Errorf("CACHE_TTL_MINUTES は %d〜%d の範囲で指定してください: %d",
			MinCacheTTLMinutes, MaxCacheTTLMinutes, ttlMinutes)
	}
	cfg.CacheTTL = time.Duration(ttlMinutes) * time.Minute

	// Optional fields with defaults
	cfg.GraphEndpoint = getEnvString("GRAPH_ENDPOINT", "https://graph.microsoft.com/v1.0")
	cfg.GraphTokenURL = getEnvString("GRAPH_TOKEN_URL",
		fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.GraphTenantID))
	cfg.Timezone = getEnvString("TIMEZONE", "")
	cfg.CategoriesFile = getEnvString("CATEGORIES_FILE", "")
	cfg.CategoryReloadInterval = getEnvDuration("CATEGORY_RELOAD_INTERVAL", 1*time.Minute)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.SanitizeBody = getEnvBool("SANITIZE_BODY", true)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
