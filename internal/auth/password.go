package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/blogman/internal/model"
)

// DefaultBcryptCost はBCRYPT_COST未指定時のコスト。
const DefaultBcryptCost = 10

// MaxPasswordBytes はbcryptが扱える最大のパスワード長（バイト）。
const MaxPasswordBytes = 72

// PasswordHasher はbcryptによるパスワードのハッシュ化と照合を行う。
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// bcryptの許容範囲外のコストはDefaultBcryptCostに置き換える。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{Cost: cost}
}

// Hash はパスワードのbcryptハッシュを返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify は保存済みハッシュとパスワードを照合する。
// 不一致、外部IdP専用ユーザーのセンチネル値、bcrypt形式でない値はいずれも(false, nil)を返す。
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	if hash == model.FederatedPasswordSentinel || !strings.HasPrefix(hash, "$2") {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}

	var prefixErr bcrypt.InvalidHashPrefixError
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword),
		errors.Is(err, bcrypt.ErrHashTooShort),
		errors.As(err, &prefixErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
}
