package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopgate/internal/middleware"
	"github.com/hitoshi/shopgate/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの最大サイズ。
const maxRequestBodySize = 1 << 20

// writeOK は成功エンベロープを書き込む。
func writeOK(w http.ResponseWriter, statusCode int, message string, data any) {
	middleware.WriteSuccessResponse(w, statusCode, message, data)
}

// decodeJSON はリクエストボディをJSONとして読み取る。
// 未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		reason := "リクエストボディの解析に失敗しました。"
		if errors.Is(err, io.EOF) {
			reason = "リクエストボディが空です。"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(reason))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := model.AsAPIError(err); ok {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeEmailAlreadyExists,
		model.ErrCodeInvalidShop, model.ErrCodeInvalidState:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidToken, model.ErrCodeInvalidHMAC:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeSessionNotFound, model.ErrCodeSessionsNotFound:
		return http.StatusNotFound
	case model.ErrCodeExternalExchangeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// principalUserID は認証済みユーザーIDを返す。取得できない場合は401を書き込みfalseを返す。
func principalUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return 0, false
	}
	return id, true
}

// principalOrganization は認証済みユーザーの組織名を返す。
// 認証情報がなければ401、組織に属していなければ403を書き込みfalseを返す。
func principalOrganization(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return "", false
	}
	if p.Organization == "" {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return "", false
	}
	return p.Organization, true
}
