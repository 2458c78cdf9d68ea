package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/blogman/internal/model"
)

// --- モック ---

type mockSessionUser struct {
	userID  string
	cleared bool
}

func (m *mockSessionUser) UserID(ctx context.Context) string { return m.userID }
func (m *mockSessionUser) ClearUser(ctx context.Context) {
	m.cleared = true
	m.userID = ""
}

type mockUserLoader struct {
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockUserLoader) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

type mockCSRFSource struct {
	token string
	err   error
}

func (m *mockCSRFSource) CSRFToken(ctx context.Context) (string, error) {
	return m.token, m.err
}

// statusOnlyRenderer はステータスコードのみを書き込むErrorRenderer。
func statusOnlyRenderer(w http.ResponseWriter, r *http.Request, status int) {
	w.WriteHeader(status)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})
