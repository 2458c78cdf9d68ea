package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
	"github.com/hitoshi/blogman/internal/view"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, userID string, in post.CreateInput) (*model.Post, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Post, error)
}

// PostHandler は記事の作成と一覧のHTTPハンドラー。
// RequireAuthの内側に配置する。
type PostHandler struct {
	*responder
	service PostServiceInterface
}

// NewForm は記事作成フォームを描画する。
// GET /blogpost
func (h *PostHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageBlogPost, view.PageData{})
}

// Create はログイン中のユーザーを所有者とする記事を作成する。
// POST /blogpost
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	in := post.CreateInput{
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
		PicURL:  r.PostFormValue("picurl"),
	}

	if _, err := h.service.Create(r.Context(), user.ID, in); err != nil {
		if ve, ok := model.IsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, view.PageBlogPost, view.PageData{
				Flash: ve.Message,
				Form:  map[string]string{"title": in.Title, "content": in.Content, "picurl": in.PicURL},
			})
			return
		}
		h.serverError(w, r, "failed to create post", err)
		return
	}

	http.Redirect(w, r, "/blogpostdisplay", http.StatusFound)
}

// List はログイン中のユーザーの記事を新しい順に描画する。
// GET /blogpostdisplay
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	posts, err := h.service.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, "failed to list posts", err)
		return
	}

	h.render(w, r, http.StatusOK, view.PageBlogPostDisplay, view.PageData{Posts: posts})
}
