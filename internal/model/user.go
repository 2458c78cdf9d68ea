// Package model はドメインモデルを定義する。
package model

import "time"

// FederatedPasswordSentinel は外部IdPのみで認証するユーザーのpasswordカラムに保存する値。
// bcryptハッシュの形式ではないため、ローカル認証で一致することはない。
const FederatedPasswordSentinel = "google"

// User はブログを利用するユーザーを表す。
// Emailはログインキーであり、ストア全体で一意。
type User struct {
	ID        string
	Username  string
	Email     string
	Password  string // bcryptハッシュ、またはFederatedPasswordSentinel
	CreatedAt time.Time
}

// IsFederatedOnly はローカルパスワードを持たないユーザーかどうかを返す。
func (u *User) IsFederatedOnly() bool {
	return u.Password == FederatedPasswordSentinel
}
