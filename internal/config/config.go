// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// minJWTSecretLength はHS256署名鍵として受け入れる最小バイト数。
const minJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// JWT
	JWTSecret    string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"shopgate"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"720h"`
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"12"`

	// Shopify
	ShopifyAPIKey        string        `env:"SHOPIFY_API_KEY,required,notEmpty"`
	ShopifyAPISecret     string        `env:"SHOPIFY_API_SECRET,required,notEmpty"`
	ShopifyScopes        []string      `env:"SHOPIFY_API_SCOPES" envSeparator:"," envDefault:"read_products,write_products"`
	ShopifyAPIVersion    string        `env:"SHOPIFY_API_VERSION" envDefault:"2024-10"`
	ShopifyWebhookTopics []string      `env:"SHOPIFY_WEBHOOK_TOPICS" envSeparator:"," envDefault:"app/uninstalled"`
	ShopifyHTTPTimeout   time.Duration `env:"SHOPIFY_HTTP_TIMEOUT" envDefault:"10s"`

	// OAuth state
	RedisURL      string        `env:"REDIS_URL"`
	OAuthStateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	// Server
	Host        string `env:"HOST,required,notEmpty"`
	FrontendURL string `env:"FRONTEND_URL,required,notEmpty"`
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`

	// Worker
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SessionCleanupGrace    time.Duration `env:"SESSION_CLEANUP_GRACE" envDefault:"24h"`

	// Rate Limit
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"1000"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			return nil, fmt.Errorf("required environment variables are not set: %w", err)
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if cfg.JWTAccessTTL <= 0 {
		return nil, fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if cfg.SessionCleanupInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive")
	}

	cfg.Host = strings.TrimRight(cfg.Host, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.ShopifyScopes = trimAll(cfg.ShopifyScopes)
	cfg.ShopifyWebhookTopics = trimAll(cfg.ShopifyWebhookTopics)

	return cfg, nil
}

// trimAll は空白を除去し、空要素を取り除く。
func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
