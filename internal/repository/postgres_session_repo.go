package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションストア。
// scs.CtxStoreを実装し、セッションデータはscsがエンコードしたバイト列のまま保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// FindCtx は指定トークンのセッションデータを取得する。期限切れの場合は見つからない扱いとする。
func (r *PostgresSessionRepo) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE token = $1 AND expiry > now()`,
		token,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find session: %w", err)
	}

	return data, true, nil
}

// CommitCtx はセッションデータを保存する。既存トークンの場合は上書きする。
func (r *PostgresSessionRepo) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, data, expiry)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token) DO UPDATE SET data = EXCLUDED.data, expiry = EXCLUDED.expiry`,
		token, b, expiry.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// DeleteCtx は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) DeleteCtx(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Find はFindCtxをcontext.Background()で呼び出す。
func (r *PostgresSessionRepo) Find(token string) ([]byte, bool, error) {
	return r.FindCtx(context.Background(), token)
}

// Commit はCommitCtxをcontext.Background()で呼び出す。
func (r *PostgresSessionRepo) Commit(token string, b []byte, expiry time.Time) error {
	return r.CommitCtx(context.Background(), token, b, expiry)
}

// Delete はDeleteCtxをcontext.Background()で呼び出す。
func (r *PostgresSessionRepo) Delete(token string) error {
	return r.DeleteCtx(context.Background(), token)
}

// DeleteExpired は有効期限を過ぎたセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expiry <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ SessionRepository = (*PostgresSessionRepo)(nil)
	_ scs.CtxStore      = (*PostgresSessionRepo)(nil)
)
