// Package password はbcryptによるパスワードのハッシュ化と照合を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch はパスワードがハッシュと一致しないことを表す。
var ErrMismatch = errors.New("password: mismatch")

// dummyPlain はローカルパスワードを持たないアカウントとの照合に使う平文。
const dummyPlain = "shopgate-no-local-password"

// Hasher はbcryptのコストを保持するハッシュ化器。
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher は指定コストのHasherを生成する。
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d: %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPlain), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Hash は平文パスワードのbcryptハッシュを返す。
func (h *Hasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare はハッシュと平文を定数時間で照合する。
// hashが空の場合もダミーハッシュとの照合を行った上でErrMismatchを返し、
// パスワード未設定と不一致を応答時間から区別できないようにする。
func (h *Hasher) Compare(hash, plain string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
		return ErrMismatch
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return fmt.Errorf("failed to compare password: %w", err)
}
