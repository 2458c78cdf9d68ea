package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/alexedwards/scs/v2"
)

// HashedStore はトークンをHMAC-SHA256で変換してから下位のストアに渡す。
// ストアには生のセッショントークンが保存されない。
type HashedStore struct {
	inner  scs.Store
	secret []byte
}

// NewHashedStore はHashedStoreを生成する。
func NewHashedStore(inner scs.Store, secret string) *HashedStore {
	return &HashedStore{inner: inner, secret: []byte(secret)}
}

// key はトークンのHMAC-SHA256を16進文字列（64文字）で返す。
func (s *HashedStore) key(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// FindCtx はscs.CtxStoreを実装する。
func (s *HashedStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	if cs, ok := s.inner.(scs.CtxStore); ok {
		return cs.FindCtx(ctx, s.key(token))
	}
	return s.inner.Find(s.key(token))
}

// CommitCtx はscs.CtxStoreを実装する。
func (s *HashedStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	if cs, ok := s.inner.(scs.CtxStore); ok {
		return cs.CommitCtx(ctx, s.key(token), b, expiry)
	}
	return s.inner.Commit(s.key(token), b, expiry)
}

// DeleteCtx はscs.CtxStoreを実装する。
func (s *HashedStore) DeleteCtx(ctx context.Context, token string) error {
	if cs, ok := s.inner.(scs.CtxStore); ok {
		return cs.DeleteCtx(ctx, s.key(token))
	}
	return s.inner.Delete(s.key(token))
}

// Find はscs.Storeを実装する。
func (s *HashedStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

// Commit はscs.Storeを実装する。
func (s *HashedStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

// Delete はscs.Storeを実装する。
func (s *HashedStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

// compile-time interface check
var _ scs.CtxStore = (*HashedStore)(nil)
