package user

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/shopify"
)

const (
	minPasswordLength = 8
	// bcryptが扱える最大長
	maxPasswordBytes = 72
	maxNameLength    = 255
)

// NormalizeEmail はメールアドレスを前後空白除去・小文字化して返す。
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > maxNameLength {
		return "", model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return email, nil
}

func validateName(field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(v)
	if n == 0 || n > maxNameLength {
		return "", model.NewValidationError(field + " は1文字以上255文字以内で入力してください。")
	}
	return v, nil
}

func validatePassword(p string) error {
	if utf8.RuneCountInString(p) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上で入力してください。")
	}
	if len(p) > maxPasswordBytes {
		return model.NewValidationError("パスワードは72バイト以内で入力してください。")
	}
	return nil
}

// validateOrganization はローカル登録で指定できる組織名を検証する。
// ショップドメインはShopify OAuthでのみ割り当てられるため受け付けない。
func validateOrganization(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", model.NewValidationError("organization は255文字以内で入力してください。")
	}
	if isShopDomain(v) {
		return "", model.NewValidationError("ショップドメインは組織名として登録できません。")
	}
	return v, nil
}

// isShopDomain はショップドメインとして解釈できる値かを返す。
func isShopDomain(v string) bool {
	if strings.Contains(strings.ToLower(v), "myshopify") {
		return true
	}
	if !strings.Contains(v, ".") {
		return false
	}
	_, err := shopify.SanitizeShop(v)
	return err == nil
}
