// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/shopgate/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("repository: email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindOAuthUserByOrganization は組織（ショップドメイン）に属する、ローカルパスワードを
	// 持たない（OAuthで作成された）最古のユーザーを取得する。見つからない場合はnilを返す。
	FindOAuthUserByOrganization(ctx context.Context, organization string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はnilでないフィールドのみを更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。Passwordはハッシュ済みであること。
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除し、削除したかどうかを返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// ShopifySessionRepository はShopifyセッションの永続化インターフェース。
type ShopifySessionRepository interface {
	// Upsert はIDをキーにセッションを作成または更新する。
	// 単一のSQL文で実行され、createdは新規作成の場合にtrueとなる。
	Upsert(ctx context.Context, session *model.ShopifySession) (stored *model.ShopifySession, created bool, err error)

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ShopifySession, error)

	// FindByShop はショップの全セッションを取得する。該当なしの場合は空スライスを返す。
	FindByShop(ctx context.Context, shop string) ([]model.ShopifySession, error)

	// Update はnilでないフィールドのみを更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error)

	// DeleteByID は指定IDのセッションを削除し、削除したかどうかを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteByShop はショップの全セッションを削除し、削除件数を返す。
	DeleteByShop(ctx context.Context, shop string) (int64, error)

	// Exists は指定IDのセッションが存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)
}

// Pinger はデータベースの疎通確認用インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}
