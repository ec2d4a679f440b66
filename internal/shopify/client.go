package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/shopgate/internal/model"
)

// ErrExchange はShopifyとの通信（トークン交換、API呼び出し）の失敗を表す。
var ErrExchange = errors.New("shopify: external exchange failed")

// maxResponseSize はShopify APIレスポンスの最大読み取りサイズ。
const maxResponseSize = 1 << 20

// Config はClientの設定。
type Config struct {
	APIKey         string
	APISecret      string
	Scopes         []string
	APIVersion     string
	WebhookTopics  []string
	WebhookAddress string
}

// AuthSession はトークン交換の結果。
type AuthSession struct {
	ID               string
	Shop             string
	IsOnline         bool
	Scope            string
	Expires          *time.Time
	AccessToken      string
	OnlineAccessInfo *model.OnlineAccessInfo
}

// ShopInfo はshop.jsonから取得するショップ情報。
type ShopInfo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Domain          string `json:"domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
	ShopOwner       string `json:"shop_owner"`
}

// Client はShopifyとのOAuthおよび管理APIクライアント。
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    func(shop string) string
	now        func() time.Time
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient は送信に使うHTTPクライアントを指定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL はショップごとの接続先を差し替える。
func WithBaseURL(fn func(shop string) string) Option {
	return func(c *Client) { c.baseURL = fn }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient はClientを生成する。
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		baseURL:    func(shop string) string { return "https://" + shop },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) oauthConfig(shop, redirectURI string) *oauth2.Config {
	base := c.baseURL(shop)
	return &oauth2.Config{
		ClientID:     c.cfg.APIKey,
		ClientSecret: c.cfg.APISecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/admin/oauth/authorize",
			TokenURL:  base + "/admin/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL は同意画面のURLを返す。onlineの場合はユーザー単位のトークンを要求する。
func (c *Client) AuthorizeURL(shop, state, redirectURI string, online bool) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("scope", strings.Join(c.cfg.Scopes, ",")),
	}
	if online {
		opts = append(opts, oauth2.SetAuthURLParam("grant_options[]", "per-user"))
	}
	return c.oauthConfig(shop, redirectURI).AuthCodeURL(state, opts...)
}

// VerifyCallbackHMAC はコールバックのクエリ署名を検証する。
func (c *Client) VerifyCallbackHMAC(query url.Values) bool {
	return verifyQueryHMAC(c.cfg.APISecret, query, c.now())
}

// VerifyWebhook はWebhook本文の署名を検証する。
func (c *Client) VerifyWebhook(body []byte, header string) bool {
	return VerifyWebhookHMAC(c.cfg.APISecret, body, header)
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// オフラインのセッションIDは "offline_{shop}"、オンラインは "{shop}_{スタッフID}"。
func (c *Client) ExchangeCode(ctx context.Context, shop, code string, online bool) (*AuthSession, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauthConfig(shop, "").Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token request: %w", ErrExchange, err)
	}

	sess := &AuthSession{
		Shop:        shop,
		IsOnline:    online,
		AccessToken: tok.AccessToken,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		sess.Scope = scope
	}
	if exp, ok := c.expiry(tok); ok {
		sess.Expires = &exp
	}

	if !online {
		sess.ID = "offline_" + shop
		return sess, nil
	}

	info, err := onlineAccessInfo(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	if sess.Expires != nil {
		info.ExpiresIn = int64(sess.Expires.Sub(c.now()).Round(time.Second).Seconds())
	}
	sess.OnlineAccessInfo = info
	sess.ID = shop + "_" + strconv.FormatInt(info.AssociatedUser.ID, 10)
	return sess, nil
}

// onlineAccessInfo はトークンレスポンスの追加フィールドからスタッフ情報を取り出す。
func onlineAccessInfo(tok *oauth2.Token) (*model.OnlineAccessInfo, error) {
	raw, ok := tok.Extra("associated_user").(map[string]any)
	if !ok {
		return nil, errors.New("online token response without associated_user")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode associated_user: %w", err)
	}

	info := &model.OnlineAccessInfo{}
	if err := json.Unmarshal(b, &info.AssociatedUser); err != nil {
		return nil, fmt.Errorf("failed to decode associated_user: %w", err)
	}
	if s, ok := tok.Extra("associated_user_scope").(string); ok {
		info.AssociatedUserScope = s
	}
	return info, nil
}

// expiry はトークンの有効期限をクライアントの時計で求める。
// expires_inがあればそれを優先し、なければoauth2が算出したExpiryを使う。
func (c *Client) expiry(tok *oauth2.Token) (time.Time, bool) {
	if tok.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tok.ExpiresIn) * time.Second), true
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry, true
	}
	return time.Time{}, false
}

// FetchShop はショップ情報を取得する。
func (c *Client) FetchShop(ctx context.Context, shop, accessToken string) (*ShopInfo, error) {
	var body struct {
		Shop ShopInfo `json:"shop"`
	}
	status, err := c.adminRequest(ctx, http.MethodGet, shop, accessToken, "shop.json", nil, &body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: shop.json returned status %d", ErrExchange, status)
	}
	return &body.Shop, nil
}

// RegisterWebhooks は設定済みの全トピックにWebhookを登録する。
// 登録済み（422 "has already been taken"）は成功として扱う。
func (c *Client) RegisterWebhooks(ctx context.Context, shop, accessToken string) error {
	for _, topic := range c.cfg.WebhookTopics {
		payload := map[string]any{
			"webhook": map[string]string{
				"topic":   topic,
				"address": c.cfg.WebhookAddress,
				"format":  "json",
			},
		}
		var resp struct {
			Errors json.RawMessage `json:"errors"`
		}
		status, err := c.adminRequest(ctx, http.MethodPost, shop, accessToken, "webhooks.json", payload, &resp)
		if err != nil {
			return fmt.Errorf("register webhook %s: %w", topic, err)
		}
		switch {
		case status == http.StatusCreated || status == http.StatusOK:
		case status == http.StatusUnprocessableEntity && bytes.Contains(resp.Errors, []byte("already been taken")):
		default:
			return fmt.Errorf("%w: register webhook %s returned status %d", ErrExchange, topic, status)
		}
	}
	return nil
}

// adminRequest は管理APIを呼び出し、ステータスコードを返す。
// 2xxおよび422の場合はレスポンス本文をoutにデコードする。
func (c *Client) adminRequest(ctx context.Context, method, shop, accessToken, resource string, in, out any) (int, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL(shop), c.cfg.APIVersion, resource)

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrExchange, err)
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrExchange, method, resource, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", ErrExchange, resource, err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if (ok || resp.StatusCode == http.StatusUnprocessableEntity) && out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return 0, fmt.Errorf("%w: decode %s: %w", ErrExchange, resource, err)
		}
	}
	return resp.StatusCode, nil
}
