// Package session はShopifyセッションの保存と照会を提供する。
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shopgate/internal/metrics"
	"github.com/hitoshi/shopgate/internal/model"
	"github.com/hitoshi/shopgate/internal/repository"
)

// Service はShopifyセッションのサービス層。
type Service struct {
	repo     repository.ShopifySessionRepository
	recorder metrics.Recorder
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(repo repository.ShopifySessionRepository, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{repo: repo, recorder: recorder}
}

// Store はセッションをIDで作成または上書きし、保存後の行を返す。
// 同一IDで繰り返し呼び出しても行は1件のまま最後の値が反映される。
func (s *Service) Store(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error) {
	if sess.ID == "" {
		return nil, model.NewValidationError("セッションIDは必須です。")
	}
	if sess.Shop == "" {
		return nil, model.NewValidationError("ショップは必須です。")
	}

	stored, created, err := s.repo.Upsert(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}
	s.recorder.RecordSessionUpsert(created)

	slog.Info("shopify session stored",
		slog.String("session_id", stored.ID),
		slog.String("shop", stored.Shop),
		slog.Bool("online", stored.IsOnline),
		slog.Bool("created", created),
	)
	return stored, nil
}

// Load は指定IDのセッションを返す。存在しない場合はSESSION_NOT_FOUND。
func (s *Service) Load(ctx context.Context, id string) (*model.ShopifySession, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if sess == nil {
		return nil, model.NewSessionNotFoundError(id)
	}
	return sess, nil
}

// LoadByShop はショップの全セッションを返す。
// 0件はエラーではなくEmpty()がtrueの結果として返す。
func (s *Service) LoadByShop(ctx context.Context, shop string) (model.ShopSessions, error) {
	sessions, err := s.repo.FindByShop(ctx, shop)
	if err != nil {
		return model.ShopSessions{}, fmt.Errorf("ショップのセッション取得に失敗しました: %w", err)
	}
	return model.ShopSessions{Shop: shop, Sessions: sessions}, nil
}

// Update はセッションを部分更新する。存在しない場合はSESSION_NOT_FOUND。
func (s *Service) Update(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error) {
	if patch.IsEmpty() {
		return nil, model.NewValidationError("更新する項目がありません。")
	}
	sess, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("セッションの更新に失敗しました: %w", err)
	}
	if sess == nil {
		return nil, model.NewSessionNotFoundError(id)
	}
	return sess, nil
}

// Delete は指定IDのセッションを削除し、削除したかどうかを返す。
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if deleted {
		slog.Info("shopify session deleted", slog.String("session_id", id))
	}
	return deleted, nil
}

// DeleteByShop はショップの全セッションを削除し、件数を返す。0件も成功とする。
func (s *Service) DeleteByShop(ctx context.Context, shop string) (int64, error) {
	n, err := s.repo.DeleteByShop(ctx, shop)
	if err != nil {
		return 0, fmt.Errorf("ショップのセッション削除に失敗しました: %w", err)
	}
	slog.Info("shopify sessions deleted by shop",
		slog.String("shop", shop),
		slog.Int64("count", n),
	)
	return n, nil
}

// Exists は指定IDのセッションが存在するかを返す。
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("セッションの存在確認に失敗しました: %w", err)
	}
	return ok, nil
}
