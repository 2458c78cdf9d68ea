package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも見つからない扱いとする。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
// 一意性はusers_email_key制約で判定するため、事前の存在確認は行わない。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, email, password)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING created_at`,
		user.ID, user.Username, user.Email, user.Password,
	).Scan(&user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

const findOrCreateFederatedQuery = `
WITH inserted AS (
	INSERT INTO users (id, username, email, password)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (email) DO NOTHING
	RETURNING id, username, email, password, created_at
)
SELECT id, username, email, password, created_at, true FROM inserted
UNION ALL
SELECT id, username, email, password, created_at, false FROM users WHERE email = $3
LIMIT 1`

// FindOrCreateFederated はメールアドレスが一致するユーザーを返し、存在しなければ作成する。
// 挿入と検索を1文で行うため、同時ログインでもユーザーが重複しない。
func (r *PostgresUserRepo) FindOrCreateFederated(ctx context.Context, user *model.User) (*model.User, bool, error) {
	id := user.ID
	if id == "" {
		id = uuid.New().String()
	}

	found := &model.User{}
	var created bool
	err := r.db.QueryRowContext(ctx, findOrCreateFederatedQuery,
		id, user.Username, user.Email, user.Password,
	).Scan(&found.ID, &found.Username, &found.Email, &found.Password, &found.CreatedAt, &created)

	if errors.Is(err, sql.ErrNoRows) {
		// 競合した行が文のスナップショット取得後にコミットされた場合は0行になる
		existing, findErr := r.FindByEmail(ctx, user.Email)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("failed to find or create federated user: %s", user.Email)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find or create federated user: %w", err)
	}

	return found, created, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
