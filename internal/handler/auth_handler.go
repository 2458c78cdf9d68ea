package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/view"
)

// 画面に表示するフラッシュメッセージ。
const (
	flashEmailTaken         = "That email is already registered. Please log in."
	flashInvalidCredentials = "Invalid email or password."
	flashGoogleFailed       = "Google sign-in failed. Please try again."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	middleware.UserLoader

	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	LoginURL(state string) string
	CompleteFederated(ctx context.Context, code string) (*model.User, error)
}

// AuthHandler はローカル認証とGoogle OAuthのHTTPハンドラー。
type AuthHandler struct {
	*responder
	service AuthServiceInterface
}

// Register はユーザーを登録してログインさせる。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := auth.RegisterInput{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			h.redirectWithFlash(w, r, "/login", flashEmailTaken)
			return
		}
		if ve, ok := model.IsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, view.PageRegister, view.PageData{
				Flash: ve.Message,
				Form:  map[string]string{"username": in.Username, "email": in.Email},
			})
			return
		}
		h.serverError(w, r, "failed to register user", err)
		return
	}

	h.login(w, r, user.ID)
}

// Login はメールアドレスとパスワードでログインする。
// POST /login
// フォームのusernameフィールドにメールアドレスが入る（emailフィールドも受け付ける）。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("username")
	if email == "" {
		email = r.PostFormValue("email")
	}

	user, err := h.service.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.redirectWithFlash(w, r, "/login", flashInvalidCredentials)
			return
		}
		h.serverError(w, r, "failed to authenticate user", err)
		return
	}

	h.login(w, r, user.ID)
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.serverError(w, r, "failed to logout", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.NewOAuthState(r.Context())
	if err != nil {
		h.serverError(w, r, "failed to generate oauth state", err)
		return
	}
	http.Redirect(w, r, h.service.LoginURL(state), http.StatusFound)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/secrets?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// stateは成否にかかわらず1回で破棄する
	expected := h.sessions.PopOAuthState(r.Context())

	if idpErr := q.Get("error"); idpErr != "" {
		slog.Info("oauth login cancelled", slog.String("error", idpErr))
		h.redirectWithFlash(w, r, "/login", flashGoogleFailed)
		return
	}

	state := q.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		slog.Warn("oauth state mismatch", slog.Bool("state_in_session", expected != ""))
		h.redirectWithFlash(w, r, "/login", flashGoogleFailed)
		return
	}

	user, err := h.service.CompleteFederated(r.Context(), q.Get("code"))
	if err != nil {
		if errors.Is(err, auth.ErrFederatedRejected) || errors.Is(err, auth.ErrOAuthExchange) {
			slog.Warn("oauth login failed", slog.String("error", err.Error()))
			h.redirectWithFlash(w, r, "/login", flashGoogleFailed)
			return
		}
		h.serverError(w, r, "failed to complete oauth login", err)
		return
	}

	h.login(w, r, user.ID)
}

// login はセッションにユーザーIDを保存して記事作成画面へリダイレクトする。
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.sessions.Login(r.Context(), userID); err != nil {
		h.serverError(w, r, "failed to start session", err)
		return
	}
	http.Redirect(w, r, "/blogpost", http.StatusFound)
}
