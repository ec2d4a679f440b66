// Package token は署名付きベアラートークンの発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/shopgate/internal/model"
)

// Claims はトークンのペイロード。全フローで同一のスキーマを使用する。
type Claims struct {
	Email        string `json:"email"`
	Role         string `json:"role"`
	Organization string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Principal は検証済みトークンから得られる認証主体。
type Principal struct {
	UserID       int64
	Email        string
	Role         string
	Organization string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Issuer はHS256トークンの発行と検証を行う。
// 有効期間は生成時に固定され、呼び出し側から指定することはできない。
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザーのトークンを発行する。
func (i *Issuer) Issue(user *model.User) (string, error) {
	if user == nil || user.ID == 0 {
		return "", errors.New("token: user without id")
	}

	now := i.now().UTC()
	claims := Claims{
		Email:        user.Email,
		Role:         user.Role,
		Organization: user.Organization,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate はトークンを検証しPrincipalを返す。
// 失敗時は常にINVALID_TOKENのAPIErrorを返す。期限切れかどうかはIsExpiredで判別できる。
func (i *Issuer) Validate(raw string) (*Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, invalid(err)
	}
	if !parsed.Valid {
		return nil, invalid(jwt.ErrTokenInvalidClaims)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, invalid(fmt.Errorf("%w: subject %q", jwt.ErrTokenInvalidSubject, claims.Subject))
	}

	return &Principal{
		UserID:       userID,
		Email:        claims.Email,
		Role:         claims.Role,
		Organization: claims.Organization,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// invalidTokenError は利用者向けのAPIErrorと内部原因の両方を保持する。
type invalidTokenError struct {
	apiErr *model.APIError
	cause  error
}

func invalid(cause error) error {
	return &invalidTokenError{apiErr: model.NewInvalidTokenError(), cause: cause}
}

func (e *invalidTokenError) Error() string {
	return e.apiErr.Error()
}

func (e *invalidTokenError) Unwrap() []error {
	return []error{e.apiErr, e.cause}
}

// IsExpired はエラーが有効期限切れによるものかを返す。
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// Reason はメトリクス用の失敗理由ラベルを返す。
func Reason(err error) string {
	if IsExpired(err) {
		return "expired"
	}
	return "invalid"
}

// ExtractBearer はAuthorizationヘッダーからトークンを取り出す。
func ExtractBearer(header string) (string, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
