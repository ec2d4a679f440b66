// Package shopify はShopify管理APIおよびOAuthとの通信を提供する。
package shopify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidShop はショップドメインが不正であることを表す。
var ErrInvalidShop = errors.New("shopify: invalid shop domain")

const shopSuffix = ".myshopify.com"

var shopPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// SanitizeShop はショップ指定を正規化した *.myshopify.com ドメインを返す。
// ハンドルのみ（"foo"）の場合は "foo.myshopify.com" に補完する。
func SanitizeShop(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidShop)
	}
	if !strings.Contains(s, ".") {
		s += shopSuffix
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidShop, raw, err)
	}
	if !shopPattern.MatchString(ascii) {
		return "", fmt.Errorf("%w: %q", ErrInvalidShop, raw)
	}
	return ascii, nil
}
