// Package auth はローカル認証、トークン検証、Shopify OAuthフローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shopgate/internal/metrics"
	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/password"
	"github.com/hitoshi/shopgate/internal/repository"
	"github.com/hitoshi/shopgate/internal/token"
	"github.com/hitoshi/shopgate/internal/user"
)

// PasswordComparer はパスワード照合のインターフェース。
type PasswordComparer interface {
	Compare(hash, plain string) error
}

// TokenIssuer はトークンの発行と検証のインターフェース。
type TokenIssuer interface {
	Issue(user *model.User) (string, error)
	Validate(raw string) (*token.Principal, error)
}

// LoginResult はログイン成功時の応答。
type LoginResult struct {
	User        *model.User `json:"user"`
	Token       string      `json:"token"`
	RedirectURL string      `json:"-"`
}

// CredentialVerifier はメールアドレスとパスワードの組を検証する。
type CredentialVerifier struct {
	userRepo  repository.UserRepository
	passwords PasswordComparer
}

// NewCredentialVerifier はCredentialVerifierを生成する。
func NewCredentialVerifier(userRepo repository.UserRepository, passwords PasswordComparer) *CredentialVerifier {
	return &CredentialVerifier{userRepo: userRepo, passwords: passwords}
}

// Verify は認証情報を検証し、パスワードを除いたユーザーを返す。
// ユーザー不在・ローカルパスワード未設定・不一致はいずれも同じINVALID_CREDENTIALSになる。
func (v *CredentialVerifier) Verify(ctx context.Context, email, plain string) (*model.User, error) {
	found, err := v.userRepo.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	var hash string
	reason := "password_mismatch"
	switch {
	case found == nil:
		reason = "user_not_found"
	case !found.HasLocalPassword():
		reason = "no_local_password"
	default:
		hash = *found.Password
	}

	// hashが空の場合もダミーハッシュとの照合が行われる
	err = v.passwords.Compare(hash, plain)
	if err == nil && hash != "" {
		return found.Sanitized(), nil
	}
	if err != nil && !errors.Is(err, password.ErrMismatch) {
		slog.Error("password comparison failed",
			slog.Int64("user_id", found.ID),
			slog.String("error", err.Error()),
		)
		reason = "malformed_hash"
	}

	slog.Info("login rejected", slog.String("reason", reason))
	return nil, model.NewInvalidCredentialsError()
}

// Service はログインとトークン検証をまとめたサービス層。
type Service struct {
	verifier *CredentialVerifier
	tokens   TokenIssuer
	recorder metrics.Recorder
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(verifier *CredentialVerifier, tokens TokenIssuer, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{verifier: verifier, tokens: tokens, recorder: recorder}
}

// Login は認証情報を検証してトークンを発行する。
func (s *Service) Login(ctx context.Context, email, plain string) (*LoginResult, error) {
	user, err := s.verifier.Verify(ctx, email, plain)
	if err != nil {
		if model.HasCode(err, model.ErrCodeInvalidCredentials) {
			s.recorder.RecordLogin("invalid_credentials")
		} else {
			s.recorder.RecordLogin("error")
		}
		return nil, err
	}

	signed, err := s.tokens.Issue(user)
	if err != nil {
		s.recorder.RecordLogin("error")
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recorder.RecordLogin("success")
	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return &LoginResult{User: user, Token: signed}, nil
}

// VerifyToken はベアラートークンを検証する。
// 失敗理由（期限切れ/その他）はメトリクスにのみ記録し、呼び出し側には同一のエラーを返す。
func (s *Service) VerifyToken(raw string) (*token.Principal, error) {
	p, err := s.tokens.Validate(raw)
	if err != nil {
		s.recorder.RecordTokenValidationFailure(token.Reason(err))
		return nil, err
	}
	return p, nil
}

// Refresh は検証済みトークンの主体に対し、最新のユーザー情報でトークンを再発行する。
// 主体のユーザーが既に存在しない場合はINVALID_TOKENを返す。
func (s *Service) Refresh(ctx context.Context, userID int64) (*LoginResult, error) {
	u, err := s.verifier.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		s.recorder.RecordTokenValidationFailure("unknown_subject")
		return nil, model.NewInvalidTokenError()
	}

	signed, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{User: u.Sanitized(), Token: signed}, nil
}
