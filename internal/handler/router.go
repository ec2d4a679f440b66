package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopgate/internal/metrics"
	"github.com/hitoshi/shopgate/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	TokenValidator    middleware.TokenValidator
	WebhookVerifier   middleware.WebhookVerifier
	Recorder          metrics.Recorder
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// 認証
	AuthService         AuthServiceInterface
	RegistrationService RegistrationService

	// ユーザー
	UserService UserServiceInterface

	// Shopify
	OAuthService   OAuthServiceInterface
	SessionService SessionServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → Metrics → SecurityHeaders → CORS → RateLimit
//
// 保護されたルートはさらにBearerAuthを通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware())
	}

	bearer := middleware.NewBearerAuthMiddleware(deps.TokenValidator)

	authHandler := NewAuthHandler(deps.AuthService, deps.RegistrationService)
	userHandler := NewUserHandler(deps.UserService)
	shopifyHandler := NewShopifyHandler(deps.OAuthService, deps.SessionService)
	sessionHandler := NewSessionHandler(deps.SessionService)

	// --- 運用系 ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- ローカル認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(bearer).Get("/verify", authHandler.Verify)
	})

	// --- ユーザー管理 ---
	r.Route("/api/users", func(r chi.Router) {
		r.Use(bearer)
		r.Get("/details", userHandler.Details)
		r.Put("/update", userHandler.Update)
		r.Delete("/me", userHandler.Withdraw)
	})

	// --- Shopify ---
	r.Route("/api/shopify", func(r chi.Router) {
		// OAuthフロー
		r.Get("/", shopifyHandler.Init)
		r.Get("/auth", shopifyHandler.Auth)
		r.Get("/auth/tokens", shopifyHandler.Tokens)
		r.Get("/auth/callback", shopifyHandler.Callback)

		r.With(middleware.NewWebhookHMACMiddleware(deps.WebhookVerifier)).
			Post("/webhooks", shopifyHandler.Webhook)

		// セッション管理
		r.Route("/sessions", func(r chi.Router) {
			r.Use(bearer)
			r.Post("/", sessionHandler.Create)
			r.Get("/shop/{shop}", sessionHandler.ListByShop)
			r.Delete("/shop/{shop}", sessionHandler.DeleteByShop)
			r.Get("/{id}", sessionHandler.Get)
			r.Put("/{id}", sessionHandler.Update)
			r.Delete("/{id}", sessionHandler.Delete)
			r.Get("/{id}/exists", sessionHandler.Exists)
		})
	})

	return r
}

// healthResponse はヘルスチェックの結果。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeOK(w, http.StatusOK, "ok", healthResponse{Status: "ok", Database: "unchecked"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			middleware.WriteJSON(w, middleware.ResponseBody{
				Success:    false,
				Message:    "database unavailable",
				Data:       healthResponse{Status: "unavailable", Database: "down"},
				StatusCode: http.StatusServiceUnavailable,
			})
			return
		}
		writeOK(w, http.StatusOK, "ok", healthResponse{Status: "ok", Database: "up"})
	}
}
