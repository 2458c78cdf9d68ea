package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
	"github.com/hitoshi/blogman/internal/session"
	"github.com/hitoshi/blogman/internal/view"
)

// --- モック ---

type mockAuthService struct {
	registerFn          func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn             func(ctx context.Context, email, password string) (*model.User, error)
	loginURLFn          func(state string) string
	completeFederatedFn func(ctx context.Context, code string) (*model.User, error)
	currentUserFn       func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	return m.registerFn(ctx, in)
}
func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	return m.loginFn(ctx, email, password)
}
func (m *mockAuthService) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}
func (m *mockAuthService) CompleteFederated(ctx context.Context, code string) (*model.User, error) {
	return m.completeFederatedFn(ctx, code)
}
func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Username: "alice", Email: "alice@example.com"}, nil
}

type mockPostService struct {
	createFn     func(ctx context.Context, userID string, in post.CreateInput) (*model.Post, error)
	listByUserFn func(ctx context.Context, userID string) ([]*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, userID string, in post.CreateInput) (*model.Post, error) {
	return m.createFn(ctx, userID, in)
}
func (m *mockPostService) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	return m.listByUserFn(ctx, userID)
}

type stubHealthChecker struct{ err error }

func (s stubHealthChecker) PingContext(ctx context.Context) error { return s.err }

// memUserRepo はメールアドレスの一意性を保証するインメモリのUserRepository。
type memUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByEmailLocked(email), nil
}

func (m *memUserRepo) findByEmailLocked(email string) *model.User {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findByEmailLocked(user.Email) != nil {
		return model.ErrEmailTaken
	}
	m.insertLocked(user)
	return nil
}

func (m *memUserRepo) FindOrCreateFederated(_ context.Context, user *model.User) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.findByEmailLocked(user.Email); existing != nil {
		return existing, false, nil
	}
	cp := *user
	m.insertLocked(&cp)
	return &cp, true, nil
}

func (m *memUserRepo) insertLocked(user *model.User) {
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = time.Now()
	stored := *user
	m.byID[user.ID] = &stored
}

func (m *memUserRepo) usersByEmail(email string) []*model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.User
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			result = append(result, &cp)
		}
	}
	return result
}

// memPostRepo はインメモリのPostRepository。
type memPostRepo struct {
	mu     sync.Mutex
	posts  []*model.Post
	nextID int
}

func (m *memPostRepo) Create(_ context.Context, p *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = fmt.Sprintf("post-%d", m.nextID)
	p.Date = time.Now().Truncate(24 * time.Hour)
	p.CreatedAt = time.Now().Add(time.Duration(m.nextID) * time.Millisecond)
	cp := *p
	m.posts = append(m.posts, &cp)
	return nil
}

func (m *memPostRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *memPostRepo) ListByUserID(_ context.Context, userID string) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*model.Post{}
	for _, p := range m.posts {
		if p.UserID == userID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// --- テスト用HTTPクライアント ---

var csrfTokenPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// response はテストで検証するレスポンスの要素。
type response struct {
	status   int
	location string
	body     string
	header   http.Header
}

// browser はCookieを保持し、リダイレクトを追わないHTTPクライアント。
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newTestServer(t *testing.T, deps *RouterDeps) *httptest.Server {
	t.Helper()
	if deps.Views == nil {
		views, err := view.New()
		if err != nil {
			t.Fatalf("view.New returned error: %v", err)
		}
		deps.Views = views
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(memstore.New(), session.Config{Lifetime: time.Hour})
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New returned error: %v", err)
	}
	return &browser{
		t:    t,
		base: srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s returned error: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("failed to read body: %v", err)
	}
	return response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     string(body),
		header:   resp.Header,
	}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatalf("failed to build request: %v", err)
	}
	return b.do(req)
}

// postRaw はCSRFトークンを付与せずにフォームを送信する。
func (b *browser) postRaw(path string, form url.Values) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// post はログインフォームから取得したCSRFトークンを付与してフォームを送信する。
func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrfToken())
	return b.postRaw(path, form)
}

func (b *browser) csrfToken() string {
	b.t.Helper()
	page := b.get("/login")
	m := csrfTokenPattern.FindStringSubmatch(page.body)
	if m == nil {
		b.t.Fatalf("CSRF token not found in /login page")
	}
	return m[1]
}

func assertRedirect(t *testing.T, got response, location string) {
	t.Helper()
	if got.status != http.StatusFound {
		t.Errorf("status = %d, want %d (body: %.200s)", got.status, http.StatusFound, got.body)
	}
	if got.location != location {
		t.Errorf("Location = %q, want %q", got.location, location)
	}
}

var errDB = errors.New("connection refused")

// compile-time interface check
var (
	_ SessionManager       = (*session.Manager)(nil)
	_ PageRenderer         = (*view.Renderer)(nil)
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ PostServiceInterface = (*post.Service)(nil)
)
