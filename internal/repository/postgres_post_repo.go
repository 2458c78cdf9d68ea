package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したブログ記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create は記事を作成する。dateはDB側のCURRENT_DATEで決まる。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO blog_posts (id, title, content, picurl, user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING date, created_at`,
		post.ID, post.Title, post.Content, post.PicURL, post.UserID,
	).Scan(&post.Date, &post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	return nil
}

// ListByUserID は指定ユーザーの記事を作成日時の降順で返す。
// 記事が無い場合は空スライスを返す。
func (r *PostgresPostRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Post, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []*model.Post{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, picurl, date, user_id, created_at
		 FROM blog_posts
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		p := &model.Post{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.PicURL, &p.Date, &p.UserID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
