// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/blogman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、IDと作成日時をuserに設定する。
	// 同じメールアドレスのユーザーが既に存在する場合はmodel.ErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// FindOrCreateFederated はメールアドレスが一致するユーザーを返し、
	// 存在しなければuserの内容で作成する。2番目の戻り値は新規作成したかどうか。
	// 同時実行されても同じメールアドレスのユーザーは1件しか作成されない。
	FindOrCreateFederated(ctx context.Context, user *model.User) (*model.User, bool, error)
}

// PostRepository はブログ記事の永続化インターフェース。
type PostRepository interface {
	// Create は記事を作成し、ID・日付・作成日時をpostに設定する。
	Create(ctx context.Context, post *model.Post) error

	// ListByUserID は指定ユーザーの記事を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Post, error)
}

// SessionRepository は期限切れセッションの削除インターフェース。
// セッションの読み書きはscs.Storeとして実装する。
type SessionRepository interface {
	// DeleteExpired は有効期限を過ぎたセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
