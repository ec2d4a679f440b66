// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/repository"
)

// PasswordHasher はパスワードハッシュ化のインターフェース。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Organization string `json:"organization"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// Register はローカルパスワードを持つユーザーを登録する。
// メールアドレスが登録済みの場合はEMAIL_ALREADY_EXISTSを返す。
// 返却するユーザーにはパスワードハッシュを含めない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	first, err := validateName("first_name", in.FirstName)
	if err != nil {
		return nil, err
	}
	last, err := validateName("last_name", in.LastName)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	org, err := validateOrganization(in.Organization)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyExistsError()
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		Password:     &hashed,
		Organization: org,
		Role:         model.DefaultRole,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailAlreadyExistsError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user registered", slog.Int64("user_id", user.ID))
	return user.Sanitized(), nil
}

// GetByID はユーザーを取得する。存在しない場合はUSER_NOT_FOUND。
func (s *Service) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Sanitized(), nil
}

// Update はプロフィールを部分更新する。
// メールアドレスは他ユーザーとの重複を確認し、パスワードは再ハッシュする。
func (s *Service) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return nil, model.NewValidationError("更新する項目がありません。")
	}

	if patch.FirstName != nil {
		v, err := validateName("first_name", *patch.FirstName)
		if err != nil {
			return nil, err
		}
		patch.FirstName = &v
	}
	if patch.LastName != nil {
		v, err := validateName("last_name", *patch.LastName)
		if err != nil {
			return nil, err
		}
		patch.LastName = &v
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		other, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, model.NewEmailAlreadyExistsError()
		}
		patch.Email = &email
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
		current, err := s.userRepo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if current == nil {
			return nil, model.NewUserNotFoundError()
		}
		// Shopifyで作成されたアカウントはOAuth以外のログイン手段を持たない
		if !current.HasLocalPassword() {
			return nil, model.NewValidationError("Shopifyアカウントにはパスワードを設定できません。")
		}
		hashed, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		patch.Password = &hashed
	}

	user, err := s.userRepo.Update(ctx, id, patch)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, model.NewEmailAlreadyExistsError()
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Sanitized(), nil
}

// Delete はユーザーを削除する。存在しない場合はUSER_NOT_FOUND。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewUserNotFoundError()
	}

	slog.Info("user deleted", slog.Int64("user_id", id))
	return nil
}
