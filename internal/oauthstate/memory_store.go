package oauthstate

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore はプロセス内のmapを使用したStore。単一インスタンス構成と開発用。
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Save はstateを保存する。保存時に期限切れの項目を掃除する。
func (s *MemoryStore) Save(_ context.Context, state string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, item := range s.items {
		if !now.Before(item.expiresAt) {
			delete(s.items, k)
		}
	}
	s.items[state] = memoryItem{entry: entry, expiresAt: now.Add(ttl)}
	return nil
}

// Consume はstateを取り出して削除する。
func (s *MemoryStore) Consume(_ context.Context, state string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[state]
	if !ok {
		return Entry{}, ErrStateNotFound
	}
	delete(s.items, state)
	if !s.now().Before(item.expiresAt) {
		return Entry{}, ErrStateNotFound
	}
	return item.entry, nil
}

// Len は保持している項目数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

var _ Store = (*MemoryStore)(nil)
