package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopgate/internal/model"
)

// ResponseBody はAPIレスポンスの統一エンベロープ。
// 成功・失敗のいずれも同じ形で返す。
type ResponseBody struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	Data       any          `json:"data"`
	StatusCode int          `json:"statusCode"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail は失敗時の原因カテゴリと対処方法。
type ErrorDetail struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteJSON はエンベロープをJSONで書き込む。
func WriteJSON(w http.ResponseWriter, body ResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.StatusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteSuccessResponse は成功レスポンスを書き込む。
func WriteSuccessResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJSON(w, ResponseBody{
		Success:    true,
		Message:    message,
		Data:       data,
		StatusCode: statusCode,
	})
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, ResponseBody{
		Success:    false,
		Message:    apiErr.Message,
		StatusCode: statusCode,
		Error: &ErrorDetail{
			Code:     apiErr.Code,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
