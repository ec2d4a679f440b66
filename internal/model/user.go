// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultRole は新規ユーザーに付与されるロール。
const DefaultRole = "user"

// User はサービス利用ユーザーを表す。
// Password はbcryptハッシュで、OAuthのみで作成されたアカウントではnilになる。
type User struct {
	ID              int64      `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	Password        *string    `json:"-"`
	Organization    string     `json:"organization"`
	Role            string     `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasLocalPassword はローカルパスワードでのログインが可能かを返す。
func (u *User) HasLocalPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// Sanitized はパスワードハッシュを取り除いたコピーを返す。
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Password = nil
	return &c
}

// UserPatch はユーザー更新時の部分更新フィールドを表す。
// nilのフィールドは変更しない。
type UserPatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// IsEmpty は変更対象のフィールドが1つもないかを返す。
func (p UserPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Password == nil
}
