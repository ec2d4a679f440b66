package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/shopgate/internal/model"
)

const userColumns = `id, first_name, last_name, email, organization, password,
	email_verified_at, role, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindOAuthUserByOrganization は組織に属するパスワードなしの最古のユーザーを取得する。
// ローカル登録のユーザーは組織が一致しても対象外。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindOAuthUserByOrganization(ctx context.Context, organization string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE organization = $1 AND password IS NULL
		 ORDER BY id LIMIT 1`, organization))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by organization: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	role := user.Role
	if role == "" {
		role = model.DefaultRole
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name, email, organization, password, email_verified_at, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, role, created_at, updated_at`,
		user.FirstName, user.LastName, user.Email, user.Organization,
		user.Password, user.EmailVerifiedAt, role,
	).Scan(&user.ID, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err, "users_email_key") {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はnilでないフィールドのみを更新する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			email      = COALESCE($4, email),
			password   = COALESCE($5, password),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.FirstName, patch.LastName, patch.Email, patch.Password,
	))
	if isUniqueViolation(err, "users_email_key") {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// scanUser は1行をUserに変換する。行が存在しない場合はnil, nilを返す。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var password sql.NullString
	var verifiedAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Organization,
		&password, &verifiedAt, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.Password = nullStringPtr(password)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		user.EmailVerifiedAt = &t
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
