package handler

import (
	"net/http"

	"github.com/hitoshi/blogman/internal/view"
)

// PageHandler は認証不要の静的なページを描画する。
type PageHandler struct {
	*responder
}

// Home はトップページを描画する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageHome, view.PageData{})
}

// LoginForm はログインフォームを描画する。
// GET /login
func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageLogin, view.PageData{})
}

// RegisterForm は登録フォームを描画する。
// GET /register
func (h *PageHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageRegister, view.PageData{})
}

// NotFound は404ページを描画する。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.RenderError(w, r, http.StatusNotFound)
}
