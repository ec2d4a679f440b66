package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/shopgate/internal/auth"
	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/shopify"
)

// OAuthServiceInterface はShopify OAuthハンドラーが必要とするインターフェース。
type OAuthServiceInterface interface {
	Init(query url.Values) (string, error)
	Begin(ctx context.Context, rawShop string, online bool) (string, error)
	CompleteOffline(ctx context.Context, query url.Values) (*auth.OfflineResult, error)
	CompleteOnline(ctx context.Context, query url.Values) (*auth.LoginResult, error)
}

// ShopSessionRemover はアンインストール時のセッション削除に使うインターフェース。
type ShopSessionRemover interface {
	DeleteByShop(ctx context.Context, shop string) (int64, error)
}

// topicAppUninstalled はアプリのアンインストール通知のトピック。
const topicAppUninstalled = "app/uninstalled"

// ShopifyHandler はShopify OAuthフローとWebhookのHTTPハンドラー。
// OAuthの各段階は成功時にリダイレクトで次の段階へ進める。
type ShopifyHandler struct {
	oauth    OAuthServiceInterface
	sessions ShopSessionRemover
}

// NewShopifyHandler はShopifyHandlerを生成する。
func NewShopifyHandler(oauth OAuthServiceInterface, sessions ShopSessionRemover) *ShopifyHandler {
	return &ShopifyHandler{
		oauth:    oauth,
		sessions: sessions,
	}
}

// Init はショップ指定を検証して認可開始ルートへリダイレクトする。
// GET /api/shopify
func (h *ShopifyHandler) Init(w http.ResponseWriter, r *http.Request) {
	next, err := h.oauth.Init(r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// Auth はオフライン認可を開始し、Shopifyの同意画面へリダイレクトする。
// GET /api/shopify/auth
func (h *ShopifyHandler) Auth(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if shop == "" {
		handleServiceError(w, r, model.NewValidationError("shopパラメータは必須です。"))
		return
	}

	authorizeURL, err := h.oauth.Begin(r.Context(), shop, false)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// Tokens はオフライン認可のコールバックを処理し、オンライン認可へリダイレクトする。
// GET /api/shopify/auth/tokens
func (h *ShopifyHandler) Tokens(w http.ResponseWriter, r *http.Request) {
	result, err := h.oauth.CompleteOffline(r.Context(), r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, result.NextURL, http.StatusFound)
}

// Callback はオンライン認可のコールバックを処理し、トークン付きでフロントエンドへリダイレクトする。
// GET /api/shopify/auth/callback
func (h *ShopifyHandler) Callback(w http.ResponseWriter, r *http.Request) {
	result, err := h.oauth.CompleteOnline(r.Context(), r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// Webhook はShopifyからのWebhookを受け付ける。署名はミドルウェアで検証済み。
// POST /api/shopify/webhooks
func (h *ShopifyHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get("X-Shopify-Topic")
	rawShop := r.Header.Get("X-Shopify-Shop-Domain")

	switch topic {
	case topicAppUninstalled:
		shop, err := shopify.SanitizeShop(rawShop)
		if err != nil {
			handleServiceError(w, r, model.NewInvalidShopError(rawShop))
			return
		}
		n, err := h.sessions.DeleteByShop(r.Context(), shop)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		slog.Info("app uninstalled",
			slog.String("shop", shop),
			slog.Int64("sessions_deleted", n),
		)
	default:
		slog.Info("webhook ignored",
			slog.String("topic", topic),
			slog.String("shop", rawShop),
		)
	}

	writeOK(w, http.StatusOK, "Webhook processed", nil)
}
