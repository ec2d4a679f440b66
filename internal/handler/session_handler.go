package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/shopify"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	Store(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error)
	Load(ctx context.Context, id string) (*model.ShopifySession, error)
	LoadByShop(ctx context.Context, shop string) (model.ShopSessions, error)
	Update(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByShop(ctx context.Context, shop string) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// SessionHandler はShopifyセッションのCRUDハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// deleteCountResponse は一括削除の結果。
type deleteCountResponse struct {
	Deleted int64 `json:"deleted"`
}

// existsResponse は存在確認の結果。
type existsResponse struct {
	Exists bool `json:"exists"`
}

// Get はIDでセッションを取得する。
// GET /api/shopify/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return
	}
	sess, ok := h.loadOwned(w, r, chi.URLParam(r, "id"), org)
	if !ok {
		return
	}
	writeOK(w, http.StatusOK, "Session found", sess.Redacted())
}

// ListByShop はショップの全セッションを返す。0件は404。
// GET /api/shopify/sessions/shop/{shop}
func (h *SessionHandler) ListByShop(w http.ResponseWriter, r *http.Request) {
	shop, ok := authorizeShop(w, r)
	if !ok {
		return
	}
	result, err := h.service.LoadByShop(r.Context(), shop)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if result.Empty() {
		handleServiceError(w, r, model.NewSessionsNotFoundError(shop))
		return
	}
	writeOK(w, http.StatusOK, "Sessions found", result.Redacted())
}

// Create はセッションを作成または上書きする。
// 他組織のショップ、または他組織のセッションIDへの書き込みは拒否する。
// POST /api/shopify/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return
	}
	var sess model.ShopifySession
	if !decodeJSON(w, r, &sess) {
		return
	}
	if shop, err := shopify.SanitizeShop(sess.Shop); err == nil {
		sess.Shop = shop
	}
	if sess.Shop != org {
		handleServiceError(w, r, model.NewForbiddenError())
		return
	}

	if sess.ID != "" {
		current, err := h.service.Load(r.Context(), sess.ID)
		if err != nil && !model.HasCode(err, model.ErrCodeSessionNotFound) {
			handleServiceError(w, r, err)
			return
		}
		if current != nil && current.Shop != org {
			handleServiceError(w, r, model.NewForbiddenError())
			return
		}
	}

	stored, err := h.service.Store(r.Context(), &sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Session stored", stored.Redacted())
}

// Update はセッションを部分更新する。
// PUT /api/shopify/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return
	}
	var patch model.ShopifySessionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Shop != nil {
		shop, err := shopify.SanitizeShop(*patch.Shop)
		if err != nil || shop != org {
			handleServiceError(w, r, model.NewForbiddenError())
			return
		}
		patch.Shop = &shop
	}

	id := chi.URLParam(r, "id")
	if _, ok := h.loadOwned(w, r, id, org); !ok {
		return
	}
	sess, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Session updated", sess.Redacted())
}

// Delete はIDでセッションを削除する。存在しない場合は404。
// DELETE /api/shopify/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := h.loadOwned(w, r, id, org); !ok {
		return
	}
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !deleted {
		handleServiceError(w, r, model.NewSessionNotFoundError(id))
		return
	}
	writeOK(w, http.StatusOK, "Session deleted", nil)
}

// DeleteByShop はショップの全セッションを削除する。0件も成功とする。
// DELETE /api/shopify/sessions/shop/{shop}
func (h *SessionHandler) DeleteByShop(w http.ResponseWriter, r *http.Request) {
	shop, ok := authorizeShop(w, r)
	if !ok {
		return
	}
	n, err := h.service.DeleteByShop(r.Context(), shop)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Sessions deleted", deleteCountResponse{Deleted: n})
}

// Exists はセッションの存在を返す。他組織のセッションは存在しないものとして扱う。
// GET /api/shopify/sessions/{id}/exists
func (h *SessionHandler) Exists(w http.ResponseWriter, r *http.Request) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	found, err := h.service.Exists(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if found {
		sess, err := h.service.Load(r.Context(), id)
		switch {
		case model.HasCode(err, model.ErrCodeSessionNotFound):
			found = false
		case err != nil:
			handleServiceError(w, r, err)
			return
		default:
			found = sess.Shop == org
		}
	}
	writeOK(w, http.StatusOK, "Session existence checked", existsResponse{Exists: found})
}

// loadOwned は組織に属するセッションを読み込む。
// 他組織のセッションは存在を明かさないよう404として扱う。
func (h *SessionHandler) loadOwned(w http.ResponseWriter, r *http.Request, id, org string) (*model.ShopifySession, bool) {
	sess, err := h.service.Load(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	if sess.Shop != org {
		handleServiceError(w, r, model.NewSessionNotFoundError(id))
		return nil, false
	}
	return sess, true
}

// authorizeShop はURLのショップを正規化し、認証済みユーザーの組織と一致するかを確認する。
func authorizeShop(w http.ResponseWriter, r *http.Request) (string, bool) {
	org, ok := principalOrganization(w, r)
	if !ok {
		return "", false
	}
	raw := chi.URLParam(r, "shop")
	shop, err := shopify.SanitizeShop(raw)
	if err != nil {
		handleServiceError(w, r, model.NewInvalidShopError(raw))
		return "", false
	}
	if shop != org {
		handleServiceError(w, r, model.NewForbiddenError())
		return "", false
	}
	return shop, true
}
