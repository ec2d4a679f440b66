package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/token"
)

// TokenValidator はベアラートークンの検証に必要なインターフェース。
type TokenValidator interface {
	VerifyToken(raw string) (*token.Principal, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 認証主体をリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない場合と検証に失敗した場合は同じ401 INVALID_TOKENを返す。
func NewBearerAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := token.ExtractBearer(r.Header.Get("Authorization"))
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			p, err := validator.VerifyToken(raw)
			if err != nil {
				slog.Debug("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", token.Reason(err)),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}
