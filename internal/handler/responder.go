// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/view"
)

// SessionManager はハンドラーとミドルウェアが使うセッション操作。
// session.Managerが実装する。
type SessionManager interface {
	middleware.SessionUser
	middleware.CSRFTokenSource

	Middleware(next http.Handler) http.Handler
	Login(ctx context.Context, userID string) error
	Logout(ctx context.Context) error
	SetFlash(ctx context.Context, msg string)
	PopFlash(ctx context.Context) string
	NewOAuthState(ctx context.Context) (string, error)
	PopOAuthState(ctx context.Context) string
}

// PageRenderer はページを描画する。view.Rendererが実装する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, page string, data view.PageData) error
}

// errorMessages はエラーページに表示する文言。
var errorMessages = map[int]string{
	http.StatusForbidden:           "The form has expired. Please go back, reload the page and try again.",
	http.StatusNotFound:            "The page you were looking for does not exist.",
	http.StatusInternalServerError: "Something went wrong on our side. Please try again later.",
}

// responder はページ描画とエラー応答の共通処理をまとめる。
type responder struct {
	sessions SessionManager
	views    PageRenderer
}

// render は共通項目（ログインユーザー、CSRFトークン、フラッシュ）を埋めてページを描画する。
func (rs *responder) render(w http.ResponseWriter, r *http.Request, status int, page string, data view.PageData) {
	ctx := r.Context()

	token, err := rs.sessions.CSRFToken(ctx)
	if err != nil {
		rs.serverError(w, r, "failed to issue CSRF token", err)
		return
	}

	data.User = middleware.UserFromContext(ctx)
	data.CSRFToken = token
	if data.Flash == "" {
		data.Flash = rs.sessions.PopFlash(ctx)
	}

	if err := rs.views.Render(w, status, page, data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// redirectWithFlash はフラッシュメッセージを保存してから302でリダイレクトする。
func (rs *responder) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, msg string) {
	rs.sessions.SetFlash(r.Context(), msg)
	http.Redirect(w, r, target, http.StatusFound)
}

// serverError はエラーをログに記録し、500のエラーページを返す。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func (rs *responder) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg,
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	rs.RenderError(w, r, http.StatusInternalServerError)
}

// RenderError はステータスに対応するエラーページを描画する。
// middleware.ErrorRendererとして使用するため、セッションには触れない。
func (rs *responder) RenderError(w http.ResponseWriter, r *http.Request, status int) {
	msg, ok := errorMessages[status]
	if !ok {
		msg = http.StatusText(status)
	}

	err := rs.views.Render(w, status, view.PageError, view.PageData{
		User:    middleware.UserFromContext(r.Context()),
		Status:  status,
		Message: msg,
	})
	if err != nil {
		slog.Error("failed to render error page", slog.String("error", err.Error()))
		http.Error(w, msg, status)
	}
}
