// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/shopgate/internal/auth"
	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/token"
	"github.com/hitoshi/shopgate/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	VerifyToken(raw string) (*token.Principal, error)
	Refresh(ctx context.Context, userID int64) (*auth.LoginResult, error)
}

// RegistrationService はユーザー登録のインターフェース。
type RegistrationService interface {
	Register(ctx context.Context, in user.RegisterInput) (*model.User, error)
}

// AuthHandler はローカル認証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	registry RegistrationService
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, registry RegistrationService) *AuthHandler {
	return &AuthHandler{
		service:  service,
		registry: registry,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in user.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	created, err := h.registry.Register(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "User created successfully", created)
}

// Login はメールアドレスとパスワードでログインし、トークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		handleServiceError(w, r, model.NewInvalidCredentialsError())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Login successful", result)
}

// Verify はベアラートークンを検証し、最新のユーザー情報とトークンを返す。
// GET /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Refresh(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Token verified", result)
}
