// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストにログイン中のユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// SessionUser はセッションに保存されたユーザーIDの読み書きに必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionUser interface {
	UserID(ctx context.Context) string
	ClearUser(ctx context.Context)
}

// UserLoader はユーザーIDからユーザーを取得する。見つからない場合はnilを返す。
type UserLoader interface {
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// ErrorRenderer はエラーページを描画する。
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, status int)

// NewCurrentUserMiddleware はセッションのユーザーIDからユーザーを毎リクエスト読み込み、
// リクエストコンテキストに注入するミドルウェアを返す。
// 存在しないユーザーを指すセッションは未ログインとして扱い、ユーザーIDを取り除く。
// セッションミドルウェアの内側に配置する。
func NewCurrentUserMiddleware(sessions SessionUser, users UserLoader, renderError ErrorRenderer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sessions.UserID(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.CurrentUser(r.Context(), userID)
			if err != nil {
				slog.Error("failed to load current user",
					slog.String("error", err.Error()),
					slog.String("user_id", userID),
				)
				renderError(w, r, http.StatusInternalServerError)
				return
			}
			if user == nil {
				sessions.ClearUser(r.Context())
				next.ServeHTTP(w, r)
				return
			}

			setLogUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireAuth は未ログインのリクエストを/loginへリダイレクトする。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext はリクエストコンテキストからログイン中のユーザーを取得する。
// 未ログインの場合はnilを返す。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
