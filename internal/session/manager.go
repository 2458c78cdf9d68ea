// Package session はCookieベースのセッション管理を提供する。
// セッションにはユーザーIDのみを保存し、ユーザー情報はリクエストごとに再取得する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// CookieName はセッションCookieの名前。
const CookieName = "session_id"

// セッションに保存するキー。
const (
	keyUserID     = "user_id"
	keyFlash      = "flash"
	keyCSRFToken  = "csrf_token"
	keyOAuthState = "oauth_state"
)

// Config はセッションマネージャーの設定。
type Config struct {
	Lifetime time.Duration
	Secure   bool
	Domain   string
}

// Manager はscs.SessionManagerをラップし、アプリケーションが使うセッション操作を提供する。
type Manager struct {
	scs *scs.SessionManager
}

// NewManager はManagerを生成する。storeにはscs.Storeの実装を渡す。
func NewManager(store scs.Store, cfg Config) *Manager {
	sm := scs.New()
	sm.Store = store
	if cfg.Lifetime > 0 {
		sm.Lifetime = cfg.Lifetime
	}
	sm.Cookie.Name = CookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.Secure
	sm.Cookie.Domain = cfg.Domain
	sm.Cookie.Path = "/"
	sm.Cookie.Persist = true
	sm.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("session store error",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}

	return &Manager{scs: sm}
}

// Middleware はリクエストごとにセッションを読み込み、レスポンス前に保存するミドルウェアを返す。
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return m.scs.LoadAndSave(next)
}

// Login はセッショントークンを再発行した上でユーザーIDを保存する。
// ログイン前のトークンは無効になる。
func (m *Manager) Login(ctx context.Context, userID string) error {
	if err := m.scs.RenewToken(ctx); err != nil {
		return fmt.Errorf("failed to renew session token: %w", err)
	}
	m.scs.Put(ctx, keyUserID, userID)
	m.scs.Remove(ctx, keyCSRFToken)
	return nil
}

// Logout はセッションを破棄する。
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.scs.Destroy(ctx); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// UserID はセッションに保存されたユーザーIDを返す。未ログインの場合は空文字列。
func (m *Manager) UserID(ctx context.Context) string {
	return m.scs.GetString(ctx, keyUserID)
}

// ClearUser はセッションからユーザーIDを取り除く。
// 削除済みユーザーのセッションを匿名に戻すために使う。
func (m *Manager) ClearUser(ctx context.Context) {
	m.scs.Remove(ctx, keyUserID)
}

// SetFlash は次の画面表示で1回だけ表示するメッセージを保存する。
func (m *Manager) SetFlash(ctx context.Context, msg string) {
	m.scs.Put(ctx, keyFlash, msg)
}

// PopFlash はフラッシュメッセージを取り出して削除する。
func (m *Manager) PopFlash(ctx context.Context) string {
	return m.scs.PopString(ctx, keyFlash)
}

// CSRFToken はセッションに紐づくCSRFトークンを返す。未発行の場合は生成して保存する。
func (m *Manager) CSRFToken(ctx context.Context) (string, error) {
	if token := m.scs.GetString(ctx, keyCSRFToken); token != "" {
		return token, nil
	}
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	m.scs.Put(ctx, keyCSRFToken, token)
	return token, nil
}

// NewOAuthState はOAuthのstateパラメータを生成してセッションに保存する。
func (m *Manager) NewOAuthState(ctx context.Context) (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	m.scs.Put(ctx, keyOAuthState, state)
	return state, nil
}

// PopOAuthState は保存済みのstateを取り出して削除する。1つのstateは1回しか使えない。
func (m *Manager) PopOAuthState(ctx context.Context) string {
	return m.scs.PopString(ctx, keyOAuthState)
}

// randomToken は32バイトの暗号論的乱数をURLセーフなBase64で返す。
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
