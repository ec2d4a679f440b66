// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, shopify, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeEmailAlreadyExists     = "EMAIL_ALREADY_EXISTS"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeSessionNotFound        = "SESSION_NOT_FOUND"
	ErrCodeSessionsNotFound       = "SESSIONS_NOT_FOUND"
	ErrCodeInvalidShop            = "INVALID_SHOP"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeInvalidHMAC            = "INVALID_HMAC"
	ErrCodeExternalExchangeFailed = "EXTERNAL_EXCHANGE_FAILED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode はエラーが指定コードのAPIErrorかを返す。
func HasCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// NewValidationError は入力値のビジネスルール違反エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// ユーザー不在とパスワード不一致で同一の内容を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は他組織のリソースへのアクセスを拒否するエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このショップのセッションを操作する権限がありません。",
		Category: "auth",
		Action:   "対象ショップのアカウントでログインしてください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", id),
		Category: "session",
		Action:   "セッションIDを確認してください。",
	}
}

// NewSessionsNotFoundError はショップにセッションが1件もない場合のエラーを生成する。
func NewSessionsNotFoundError(shop string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionsNotFound,
		Message:  fmt.Sprintf("ショップのセッションが見つかりません: %s", shop),
		Category: "session",
		Action:   "アプリを再インストールしてください。",
	}
}

// NewInvalidShopError は不正なショップドメインのエラーを生成する。
func NewInvalidShopError(shop string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidShop,
		Message:  fmt.Sprintf("無効なショップドメインです: %s", shop),
		Category: "validation",
		Action:   "example.myshopify.com 形式のドメインを指定してください。",
	}
}

// NewInvalidStateError はOAuthのstate不一致エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "認可リクエストの状態が無効か期限切れです。",
		Category: "shopify",
		Action:   "最初からアプリのインストールをやり直してください。",
	}
}

// NewInvalidHMACError は署名検証失敗エラーを生成する。
func NewInvalidHMACError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHMAC,
		Message:  "リクエストの署名を検証できませんでした。",
		Category: "shopify",
		Action:   "Shopify管理画面からやり直してください。",
	}
}

// NewExternalExchangeFailedError はShopifyとの通信失敗エラーを生成する。
func NewExternalExchangeFailedError(step string) *APIError {
	return &APIError{
		Code:     ErrCodeExternalExchangeFailed,
		Message:  fmt.Sprintf("Shopifyとの連携に失敗しました: %s", step),
		Category: "shopify",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "サーバー内部でエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
