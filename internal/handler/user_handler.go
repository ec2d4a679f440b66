package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/shopgate/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
// 操作対象は常にトークンの主体であり、パスからIDを受け取らない。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Details は認証済みユーザーの情報を返す。
// GET /api/users/details
func (h *UserHandler) Details(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "User found", u)
}

// Update は認証済みユーザーの情報を部分更新する。
// PUT /api/users/update
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(w, r)
	if !ok {
		return
	}

	var patch model.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	u, err := h.service.Update(r.Context(), userID, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "User updated successfully", u)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "User deleted successfully", nil)
}
