package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// callbackMaxAge はコールバックのtimestampパラメータの許容誤差。
const callbackMaxAge = 90 * time.Second

// signQuery はhmacとsignatureを除いたクエリをキー順に連結し、16進のHMAC-SHA256を返す。
func signQuery(secret string, query url.Values) string {
	params := url.Values{}
	for k, v := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		params[k] = v
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyQueryHMAC はOAuthコールバックのクエリ署名を定数時間で検証する。
// timestampが含まれる場合はnowとの差がcallbackMaxAge以内であることも確認する。
func verifyQueryHMAC(secret string, query url.Values, now time.Time) bool {
	given := query.Get("hmac")
	if given == "" {
		return false
	}
	expected := signQuery(secret, query)
	if !hmac.Equal([]byte(expected), []byte(given)) {
		return false
	}

	if ts := query.Get("timestamp"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return false
		}
		diff := now.Sub(time.Unix(sec, 0))
		if diff < -callbackMaxAge || diff > callbackMaxAge {
			return false
		}
	}
	return true
}

// VerifyWebhookHMAC はWebhook本文の署名（Base64のHMAC-SHA256）を検証する。
func VerifyWebhookHMAC(secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
