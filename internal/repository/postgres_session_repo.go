package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/shopgate/internal/model"
)

const sessionColumns = `id, shop, state, isonline, scope, expires, onlineaccessinfo, accesstoken`

// PostgresSessionRepo はPostgreSQLを使用したShopifyセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Upsert はIDをキーにセッションを作成または更新する。
// 既存行ではaccesstoken, scope, shop, expires, stateのみを上書きする。
// xmax = 0 は同一文で挿入された行であることを示す。
func (r *PostgresSessionRepo) Upsert(ctx context.Context, session *model.ShopifySession) (*model.ShopifySession, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO shopify_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			accesstoken = EXCLUDED.accesstoken,
			scope       = EXCLUDED.scope,
			shop        = EXCLUDED.shop,
			expires     = EXCLUDED.expires,
			state       = EXCLUDED.state
		 RETURNING `+sessionColumns+`, (xmax = 0) AS inserted`,
		session.ID, session.Shop, session.State, session.IsOnline,
		session.Scope, session.Expires, rawJSONArg(session.OnlineAccessInfo), session.AccessToken,
	)

	stored := &model.ShopifySession{}
	var inserted bool
	if err := scanSessionInto(row, stored, &inserted); err != nil {
		return nil, false, fmt.Errorf("failed to upsert shopify session: %w", err)
	}
	return stored, inserted, nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.ShopifySession, error) {
	session := &model.ShopifySession{}
	err := scanSessionInto(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM shopify_sessions WHERE id = $1`, id), session)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find shopify session: %w", err)
	}
	return session, nil
}

// FindByShop はショップの全セッションをID順で取得する。
func (r *PostgresSessionRepo) FindByShop(ctx context.Context, shop string) ([]model.ShopifySession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM shopify_sessions WHERE shop = $1 ORDER BY id`, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to query shopify sessions by shop: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.ShopifySession, 0)
	for rows.Next() {
		var s model.ShopifySession
		if err := scanSessionInto(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan shopify session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shopify sessions: %w", err)
	}
	return sessions, nil
}

// Update はnilでないフィールドのみを更新する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) Update(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error) {
	session := &model.ShopifySession{}
	err := scanSessionInto(r.db.QueryRowContext(ctx,
		`UPDATE shopify_sessions SET
			shop             = COALESCE($2, shop),
			state            = COALESCE($3, state),
			isonline         = COALESCE($4, isonline),
			scope            = COALESCE($5, scope),
			expires          = COALESCE($6, expires),
			onlineaccessinfo = COALESCE($7, onlineaccessinfo),
			accesstoken      = COALESCE($8, accesstoken)
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		id, patch.Shop, patch.State, patch.IsOnline, patch.Scope, patch.Expires,
		rawJSONArg(patch.OnlineAccessInfo), patch.AccessToken,
	), session)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update shopify session: %w", err)
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shopify_sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete shopify session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByShop はショップの全セッションを削除する。該当なしは0件で成功とする。
func (r *PostgresSessionRepo) DeleteByShop(ctx context.Context, shop string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shopify_sessions WHERE shop = $1`, shop)
	if err != nil {
		return 0, fmt.Errorf("failed to delete shopify sessions by shop: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Exists は指定IDのセッションが存在するかを返す。
func (r *PostgresSessionRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM shopify_sessions WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check shopify session existence: %w", err)
	}
	return exists, nil
}

// scanSessionInto は1行をShopifySessionに変換する。
// extraはRETURNING句で追加したカラムの格納先。
func scanSessionInto(row rowScanner, s *model.ShopifySession, extra ...any) error {
	var scope, info, accessToken sql.NullString
	var expires sql.NullInt64

	dest := []any{&s.ID, &s.Shop, &s.State, &s.IsOnline, &scope, &expires, &info, &accessToken}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}

	s.Scope = nullStringPtr(scope)
	s.Expires = nullInt64Ptr(expires)
	s.AccessToken = nullStringPtr(accessToken)
	if info.Valid && info.String != "" {
		s.OnlineAccessInfo = []byte(info.String)
	}
	return nil
}

// rawJSONArg はTEXTカラムに格納するJSONをSQL引数に変換する。空の場合はNULL。
func rawJSONArg(raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// compile-time interface check
var _ ShopifySessionRepository = (*PostgresSessionRepo)(nil)
