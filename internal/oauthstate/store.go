// Package oauthstate はOAuth認可フローのstate値を一度限り有効な形で保持する。
package oauthstate

import (
	"context"
	"errors"
	"time"
)

// ErrStateNotFound はstateが存在しない、期限切れ、または使用済みであることを表す。
var ErrStateNotFound = errors.New("oauthstate: state not found")

// Entry はstateに紐づく認可リクエストの内容。
type Entry struct {
	Shop   string `json:"shop"`
	Online bool   `json:"online"`
}

// Store はstateの保存と一度限りの取り出しを行う。
type Store interface {
	// Save はstateをttlの間保存する。
	Save(ctx context.Context, state string, entry Entry, ttl time.Duration) error
	// Consume はstateを取り出して削除する。存在しない場合はErrStateNotFoundを返す。
	Consume(ctx context.Context, state string) (Entry, error)
}
