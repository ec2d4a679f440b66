package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopgate/internal/model"
)

// WebhookHMACHeader はShopify Webhookの署名ヘッダー名。
const WebhookHMACHeader = "X-Shopify-Hmac-Sha256"

// maxWebhookBodySize はWebhookボディの最大読み取りサイズ。
const maxWebhookBodySize = 1 << 20

// WebhookVerifier はWebhook署名の検証に必要なインターフェース。
type WebhookVerifier interface {
	VerifyWebhook(body []byte, header string) bool
}

// NewWebhookHMACMiddleware はWebhookボディの署名を検証するミドルウェアを返す。
// 検証後のボディは後続のハンドラーから再度読み取れる。
func NewWebhookHMACMiddleware(verifier WebhookVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
			if err != nil {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません。"))
				return
			}

			if !verifier.VerifyWebhook(body, r.Header.Get(WebhookHMACHeader)) {
				slog.Warn("webhook signature rejected",
					slog.String("topic", r.Header.Get("X-Shopify-Topic")),
					slog.String("shop", r.Header.Get("X-Shopify-Shop-Domain")),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidHMACError())
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
