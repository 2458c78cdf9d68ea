// Package post はブログ記事の作成と一覧取得のドメインロジックを提供する。
package post

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/security"
)

// maxTitleLength はタイトルの最大文字数（blog_posts.titleのvarchar(255)に合わせる）。
const maxTitleLength = 255

// CreateInput は記事作成フォームの入力値。
type CreateInput struct {
	Title   string
	Content string
	PicURL  string
}

// Service は記事管理のサービス層。
type Service struct {
	posts     repository.PostRepository
	urlGuard  security.URLGuard
	sanitizer security.ContentSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	posts repository.PostRepository,
	urlGuard security.URLGuard,
	sanitizer security.ContentSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		posts:     posts,
		urlGuard:  urlGuard,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// Create は入力値を検証し、userIDを所有者とする記事を作成する。
// 入力値が不正な場合はmodel.ValidationErrorを返す。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	picURL := strings.TrimSpace(in.PicURL)

	if title == "" {
		return nil, model.NewValidationError("title", "Title is required.")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, model.NewValidationError("title", fmt.Sprintf("Title must be %d characters or fewer.", maxTitleLength))
	}
	if content == "" {
		return nil, model.NewValidationError("content", "Content is required.")
	}
	if picURL != "" {
		if err := s.urlGuard.ValidateImageURL(picURL); err != nil {
			return nil, model.NewValidationError("picurl", "Picture URL must be a public http(s) address.")
		}
	}

	sanitized := s.sanitizer.Sanitize(content)
	if strings.TrimSpace(sanitized) == "" {
		return nil, model.NewValidationError("content", "Content is required.")
	}

	p := &model.Post{
		Title:   title,
		Content: sanitized,
		PicURL:  picURL,
		UserID:  userID,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.metrics.RecordPostCreated()
	return p, nil
}

// ListByUser はuserIDが所有する記事を新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	posts, err := s.posts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}
