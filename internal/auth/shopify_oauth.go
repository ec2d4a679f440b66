package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shopgate/internal/metrics"
	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/oauthstate"
	"github.com/hitoshi/shopgate/internal/repository"
	"github.com/hitoshi/shopgate/internal/security"
	"github.com/hitoshi/shopgate/internal/shopify"
	"github.com/hitoshi/shopgate/internal/user"
)

// OAuthフローのパス。
const (
	AuthPath          = "/api/shopify/auth"
	OfflineCallback   = "/api/shopify/auth/tokens"
	OnlineCallback    = "/api/shopify/auth/callback"
	frontendVerifyURI = "/user/verify-token"
)

// Platform はShopifyとの通信のインターフェース。
type Platform interface {
	AuthorizeURL(shop, state, redirectURI string, online bool) string
	VerifyCallbackHMAC(query url.Values) bool
	ExchangeCode(ctx context.Context, shop, code string, online bool) (*shopify.AuthSession, error)
	FetchShop(ctx context.Context, shop, accessToken string) (*shopify.ShopInfo, error)
	RegisterWebhooks(ctx context.Context, shop, accessToken string) error
}

// SessionStore はShopifyセッションの保存先。
type SessionStore interface {
	Store(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// OAuthConfig はOAuthCoordinatorの設定。
type OAuthConfig struct {
	Host        string        // このサービスの公開URL
	FrontendURL string        // トークンを受け取るフロントエンドのURL
	StateTTL    time.Duration // stateの有効期間
}

// OfflineResult はオフラインコールバックの結果。
// NextURLはオンライン認可の開始URL。
type OfflineResult struct {
	Session *model.ShopifySession
	NextURL string
}

// OAuthCoordinator はShopify OAuthの認可コード交換からトークン発行までを進める。
type OAuthCoordinator struct {
	platform  Platform
	states    oauthstate.Store
	sessions  SessionStore
	userRepo  repository.UserRepository
	tokens    TokenIssuer
	sanitizer security.TextSanitizer
	recorder  metrics.Recorder
	cfg       OAuthConfig
	now       func() time.Time
}

// NewOAuthCoordinator はOAuthCoordinatorを生成する。recorderがnilの場合は記録しない。
func NewOAuthCoordinator(
	platform Platform,
	states oauthstate.Store,
	sessions SessionStore,
	userRepo repository.UserRepository,
	tokens TokenIssuer,
	sanitizer security.TextSanitizer,
	recorder metrics.Recorder,
	cfg OAuthConfig,
) *OAuthCoordinator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &OAuthCoordinator{
		platform:  platform,
		states:    states,
		sessions:  sessions,
		userRepo:  userRepo,
		tokens:    tokens,
		sanitizer: sanitizer,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
	}
}

func variantLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

// Init はショップ指定を検証し、オフライン認可開始パスを返す。
// shop以外のクエリパラメータはそのまま引き継ぐ。
func (c *OAuthCoordinator) Init(query url.Values) (string, error) {
	shop, err := shopify.SanitizeShop(query.Get("shop"))
	if err != nil {
		return "", model.NewInvalidShopError(query.Get("shop"))
	}

	next := url.Values{}
	for k, v := range query {
		next[k] = v
	}
	next.Set("shop", shop)
	return AuthPath + "?" + next.Encode(), nil
}

// Begin はstateを発行して保存し、Shopifyの同意画面URLを返す。
func (c *OAuthCoordinator) Begin(ctx context.Context, rawShop string, online bool) (string, error) {
	shop, err := shopify.SanitizeShop(rawShop)
	if err != nil {
		return "", model.NewInvalidShopError(rawShop)
	}

	state := uuid.NewString()
	if err := c.states.Save(ctx, state, oauthstate.Entry{Shop: shop, Online: online}, c.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	callback := OfflineCallback
	if online {
		callback = OnlineCallback
	}
	return c.platform.AuthorizeURL(shop, state, c.cfg.Host+callback, online), nil
}

// callbackParams はコールバックの検証済みパラメータ。
type callbackParams struct {
	shop  string
	code  string
	state string
}

// verifyCallback はショップ、署名、stateの順にコールバックを検証する。
// stateは検証の成否にかかわらず消費される。
func (c *OAuthCoordinator) verifyCallback(ctx context.Context, query url.Values, online bool) (*callbackParams, error) {
	shop, err := shopify.SanitizeShop(query.Get("shop"))
	if err != nil {
		return nil, model.NewInvalidShopError(query.Get("shop"))
	}
	if !c.platform.VerifyCallbackHMAC(query) {
		return nil, model.NewInvalidHMACError()
	}

	state := query.Get("state")
	if state == "" {
		return nil, model.NewInvalidStateError()
	}
	entry, err := c.states.Consume(ctx, state)
	if errors.Is(err, oauthstate.ErrStateNotFound) {
		return nil, model.NewInvalidStateError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if entry.Shop != shop || entry.Online != online {
		slog.Warn("oauth state mismatch",
			slog.String("shop", shop),
			slog.String("state_shop", entry.Shop),
			slog.Bool("online", online),
		)
		return nil, model.NewInvalidStateError()
	}

	code := query.Get("code")
	if code == "" {
		return nil, model.NewValidationError("認可コードがありません。")
	}
	return &callbackParams{shop: shop, code: code, state: state}, nil
}

// exchange は認可コードを交換し、失敗時はEXTERNAL_EXCHANGE_FAILEDを返す。
func (c *OAuthCoordinator) exchange(ctx context.Context, p *callbackParams, online bool) (*shopify.AuthSession, error) {
	auth, err := c.platform.ExchangeCode(ctx, p.shop, p.code, online)
	if err != nil {
		c.recorder.RecordOAuthExchange(variantLabel(online), "failure")
		slog.Error("oauth code exchange failed",
			slog.String("shop", p.shop),
			slog.String("variant", variantLabel(online)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewExternalExchangeFailedError("token exchange")
	}
	c.recorder.RecordOAuthExchange(variantLabel(online), "success")
	return auth, nil
}

// CompleteOffline はオフライントークンを交換してセッションを保存し、Webhookを登録する。
// Webhook登録に失敗した場合は保存したセッションを削除してから失敗を返す。
// 成功時はオンライン認可の開始URLを返す。
func (c *OAuthCoordinator) CompleteOffline(ctx context.Context, query url.Values) (*OfflineResult, error) {
	params, err := c.verifyCallback(ctx, query, false)
	if err != nil {
		return nil, err
	}

	auth, err := c.exchange(ctx, params, false)
	if err != nil {
		return nil, err
	}

	sess := &model.ShopifySession{
		ID:          auth.ID,
		Shop:        auth.Shop,
		State:       params.state,
		IsOnline:    false,
		Scope:       optionalString(auth.Scope),
		Expires:     epochSeconds(auth.Expires),
		AccessToken: optionalString(auth.AccessToken),
	}
	stored, err := c.sessions.Store(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to store offline session: %w", err)
	}

	if err := c.platform.RegisterWebhooks(ctx, auth.Shop, auth.AccessToken); err != nil {
		c.recorder.RecordWebhookRegistration("failure")
		slog.Error("webhook registration failed, removing session",
			slog.String("shop", auth.Shop),
			slog.String("session_id", stored.ID),
			slog.String("error", err.Error()),
		)
		if _, delErr := c.sessions.Delete(ctx, stored.ID); delErr != nil {
			slog.Error("failed to remove session after webhook failure",
				slog.String("session_id", stored.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, model.NewExternalExchangeFailedError("webhook registration")
	}
	c.recorder.RecordWebhookRegistration("success")

	next, err := c.Begin(ctx, auth.Shop, true)
	if err != nil {
		return nil, err
	}
	return &OfflineResult{Session: stored, NextURL: next}, nil
}

// CompleteOnline はオンライントークンを交換し、ローカルユーザーを特定または作成してトークンを発行する。
// オンラインのアクセストークンは永続化せず、ショップ情報の取得にのみ使用する。
func (c *OAuthCoordinator) CompleteOnline(ctx context.Context, query url.Values) (*LoginResult, error) {
	params, err := c.verifyCallback(ctx, query, true)
	if err != nil {
		return nil, err
	}

	auth, err := c.exchange(ctx, params, true)
	if err != nil {
		return nil, err
	}

	sess := &model.ShopifySession{
		ID:       fmt.Sprintf("%s_%d", auth.Shop, c.now().UnixMilli()),
		Shop:     auth.Shop,
		State:    params.state,
		IsOnline: true,
		Scope:    optionalString(auth.Scope),
		Expires:  epochSeconds(auth.Expires),
	}
	if auth.OnlineAccessInfo != nil {
		info, err := json.Marshal(auth.OnlineAccessInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to encode online access info: %w", err)
		}
		sess.OnlineAccessInfo = info
	}
	if _, err := c.sessions.Store(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store online session: %w", err)
	}

	shopInfo, err := c.platform.FetchShop(ctx, auth.Shop, auth.AccessToken)
	if err != nil {
		slog.Error("failed to fetch shop",
			slog.String("shop", auth.Shop),
			slog.String("error", err.Error()),
		)
		return nil, model.NewExternalExchangeFailedError("shop lookup")
	}

	u, err := c.resolveUser(ctx, auth.Shop, shopInfo)
	if err != nil {
		return nil, err
	}

	signed, err := c.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResult{
		User:        u.Sanitized(),
		Token:       signed,
		RedirectURL: c.cfg.FrontendURL + frontendVerifyURI + "?token=" + url.QueryEscape(signed),
	}, nil
}

// resolveUser は組織（ショップドメイン）に紐づくOAuthユーザーを返し、存在しない場合は作成する。
// ローカル登録のユーザーは組織が一致しても再利用しない。
// 作成されるユーザーはローカルパスワードを持たず、メールアドレスは確認済みとして扱う。
func (c *OAuthCoordinator) resolveUser(ctx context.Context, shop string, info *shopify.ShopInfo) (*model.User, error) {
	existing, err := c.userRepo.FindOAuthUserByOrganization(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by organization: %w", err)
	}
	if existing != nil {
		slog.Info("existing shop user logged in",
			slog.Int64("user_id", existing.ID),
			slog.String("shop", shop),
		)
		return existing, nil
	}

	first, last := splitOwnerName(c.sanitizer.Sanitize(info.ShopOwner))
	if first == "" {
		first = c.sanitizer.Sanitize(info.Name)
	}
	verifiedAt := c.now().UTC()
	created := &model.User{
		FirstName:       first,
		LastName:        last,
		Email:           user.NormalizeEmail(info.Email),
		Organization:    shop,
		Role:            model.DefaultRole,
		EmailVerifiedAt: &verifiedAt,
	}

	err = c.userRepo.Create(ctx, created)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 同一ショップの並行コールバックが先に作成した場合
		again, findErr := c.userRepo.FindOAuthUserByOrganization(ctx, shop)
		if findErr != nil {
			return nil, fmt.Errorf("failed to find user by organization: %w", findErr)
		}
		if again != nil {
			return again, nil
		}
		return nil, model.NewEmailAlreadyExistsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create shop user: %w", err)
	}

	slog.Info("shop user created",
		slog.Int64("user_id", created.ID),
		slog.String("shop", shop),
	)
	return created, nil
}

// splitOwnerName は表示名を最初の空白で姓名に分割する。
func splitOwnerName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func epochSeconds(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	sec := t.Unix()
	return &sec
}
