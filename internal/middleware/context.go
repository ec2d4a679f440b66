// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/shopgate/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	requestIDContextKey = contextKey("request_id")
	principalSlotKey    = contextKey("principal_slot")
)

// principalSlot は外側のミドルウェアが内側で確定した認証主体を参照するための入れ物。
type principalSlot struct {
	principal *token.Principal
}

// withPrincipalSlot は空のprincipalSlotをコンテキストに用意する。
func withPrincipalSlot(ctx context.Context) (context.Context, *principalSlot) {
	slot := &principalSlot{}
	return context.WithValue(ctx, principalSlotKey, slot), slot
}

// ContextWithPrincipal はコンテキストに認証主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *token.Principal) context.Context {
	if slot, ok := ctx.Value(principalSlotKey).(*principalSlot); ok {
		slot.principal = p
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// BearerAuthミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*token.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*token.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return 0, fmt.Errorf("principal not found in context")
	}
	return p.UserID, nil
}

// RequestIDFromContext はリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
