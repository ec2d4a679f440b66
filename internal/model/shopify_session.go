package model

import "encoding/json"

// ShopifySession は1ショップに対する1件のOAuth付与を表す。
// オフラインセッションはAccessTokenを保持し、オンラインセッションは保持しない。
type ShopifySession struct {
	ID               string          `json:"id"`
	Shop             string          `json:"shop"`
	State            string          `json:"state"`
	IsOnline         bool            `json:"isonline"`
	Scope            *string         `json:"scope"`
	Expires          *int64          `json:"expires"`
	OnlineAccessInfo json.RawMessage `json:"onlineaccessinfo,omitempty"`
	AccessToken      *string         `json:"accesstoken,omitempty"`
}

// Redacted はアクセストークンを除いたコピーを返す。
func (s ShopifySession) Redacted() ShopifySession {
	s.AccessToken = nil
	return s
}

// ShopifySessionPatch はセッションの部分更新を表す。
type ShopifySessionPatch struct {
	Shop             *string         `json:"shop,omitempty"`
	State            *string         `json:"state,omitempty"`
	IsOnline         *bool           `json:"isonline,omitempty"`
	Scope            *string         `json:"scope,omitempty"`
	Expires          *int64          `json:"expires,omitempty"`
	OnlineAccessInfo json.RawMessage `json:"onlineaccessinfo,omitempty"`
	AccessToken      *string         `json:"accesstoken,omitempty"`
}

// IsEmpty は変更対象のフィールドが1つもないかを返す。
func (p ShopifySessionPatch) IsEmpty() bool {
	return p.Shop == nil && p.State == nil && p.IsOnline == nil && p.Scope == nil &&
		p.Expires == nil && len(p.OnlineAccessInfo) == 0 && p.AccessToken == nil
}

// ShopSessions はショップ単位の検索結果を表す。
// 0件は正常な結果であり、ストレージエラーとは区別される。
type ShopSessions struct {
	Shop     string
	Sessions []ShopifySession
}

// Empty は該当セッションが1件もないかを返す。
func (s ShopSessions) Empty() bool {
	return len(s.Sessions) == 0
}

// Redacted は全セッションからアクセストークンを除いた一覧を返す。
func (s ShopSessions) Redacted() []ShopifySession {
	out := make([]ShopifySession, len(s.Sessions))
	for i, sess := range s.Sessions {
		out[i] = sess.Redacted()
	}
	return out
}

// OnlineAccessInfo はオンラインセッションに紐づくスタッフアカウント情報。
type OnlineAccessInfo struct {
	ExpiresIn           int64          `json:"expires_in"`
	AssociatedUserScope string         `json:"associated_user_scope"`
	AssociatedUser      AssociatedUser `json:"associated_user"`
}

// AssociatedUser はオンライントークンに紐づくShopifyスタッフ。
type AssociatedUser struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	AccountOwner  bool   `json:"account_owner"`
	Locale        string `json:"locale"`
	Collaborator  bool   `json:"collaborator"`
}
