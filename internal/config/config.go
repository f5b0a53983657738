// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth provider（GoTrue互換のバックエンド）
	AuthURL       string
	AuthAnonKey   string
	AuthJWTSecret string // 任意。設定時はアクセストークンをローカル検証する

	// Redirect
	SiteURL       string // 任意。未設定時はリクエストヘッダーから導出する
	AllowNewUsers bool   // Magic Linkで未登録ユーザーの作成を許可するか

	// Timeout
	SessionCheckTimeout time.Duration // セッション再検証用（短め）
	DataTimeout         time.Duration // データ取得用（長め）

	// Calendar
	FirstDay string // 週の開始曜日: "monday" など
	Currency string // cost_per_person の通貨記号

	// Rate Limit（req/min/キー）
	RateLimitGeneral   int
	RateLimitMagicLink int

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envはあれば読む。無くてもエラーにしない。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthURL = os.Getenv("AUTH_URL")
	if cfg.AuthURL == "" {
		missing = append(missing, "AUTH_URL")
	}

	cfg.AuthAnonKey = os.Getenv("AUTH_ANON_KEY")
	if cfg.AuthAnonKey == "" {
		missing = append(missing, "AUTH_ANON_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.SiteURL = strings.TrimRight(os.Getenv("SITE_URL"), "/")
	cfg.AllowNewUsers = getEnvBool("ALLOW_NEW_USERS", false)
	cfg.SessionCheckTimeout = getEnvDuration("SESSION_CHECK_TIMEOUT", 800*time.Millisecond)
	cfg.DataTimeout = getEnvDuration("DATA_TIMEOUT", 5*time.Second)
	cfg.FirstDay = getEnvString("FIRST_DAY", "monday")
	cfg.Currency = getEnvString("CURRENCY", "€")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMagicLink = getEnvInt("RATE_LIMIT_MAGIC_LINK", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.SiteURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

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
