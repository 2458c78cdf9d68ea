package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// --- モック定義 ---

// memUserRepo はメールアドレスの一意性を保証するインメモリのUserRepository。
type memUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	nextID int

	findErr   error
	createErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
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
	if m.createErr != nil {
		return m.createErr
	}
	if m.findByEmailLocked(user.Email) != nil {
		return model.ErrEmailTaken
	}
	m.insertLocked(user)
	return nil
}

func (m *memUserRepo) FindOrCreateFederated(_ context.Context, user *model.User) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, false, m.createErr
	}
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
	stored := *user
	m.byID[user.ID] = &stored
}

func (m *memUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type mockOAuthProvider struct {
	loginURLFn func(state string) string
	exchangeFn func(ctx context.Context, code string) (*FederatedProfile, error)
}

func (m *mockOAuthProvider) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code string) (*FederatedProfile, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

type recordingMetrics struct {
	mu            sync.Mutex
	attempts      []string
	registrations []string
}

func (r *recordingMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (r *recordingMetrics) RecordPostCreated()                                   {}
func (r *recordingMetrics) RecordSessionsPurged(int64)                           {}

func (r *recordingMetrics) RecordAuthAttempt(strategy, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, strategy+"/"+outcome)
}

func (r *recordingMetrics) RecordRegistration(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, outcome)
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

func boolPtr(b bool) *bool { return &b }

func newTestService(users *memUserRepo, oauth OAuthProvider, rec *recordingMetrics) *Service {
	if rec == nil {
		return NewService(users, NewPasswordHasher(bcrypt.MinCost), oauth, nil)
	}
	return NewService(users, NewPasswordHasher(bcrypt.MinCost), oauth, rec)
}

// --- テスト ---

func TestRegister_NewEmail_CreatesUserWithBcryptHash(t *testing.T) {
	users := newMemUserRepo()
	rec := &recordingMetrics{}
	svc := newTestService(users, nil, rec)

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "  Alice@Example.COM ",
		Password: "pw-alice",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if users.count() != 1 {
		t.Fatalf("user count = %d, want 1", users.count())
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized %q", user.Email, "alice@example.com")
	}
	if user.Password == "pw-alice" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("pw-alice")); err != nil {
		t.Errorf("stored password is not a bcrypt hash of the input: %v", err)
	}
	if len(rec.registrations) != 1 || rec.registrations[0] != "created" {
		t.Errorf("registrations = %v, want [created]", rec.registrations)
	}
}

func TestRegister_ExistingEmail_ReturnsErrEmailTaken(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(users, nil, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "one"}); err != nil {
		t.Fatalf("first Register error: %v", err)
	}

	_, err := svc.Register(ctx, RegisterInput{Username: "a2", Email: "A@example.com", Password: "two"})
	if !errors.Is(err, model.ErrEmailTaken) {
		t.Fatalf("want ErrEmailTaken, got %v", err)
	}
	if users.count() != 1 {
		t.Errorf("user count = %d, want 1", users.count())
	}
}

func TestRegister_ConcurrentSameEmail_CreatesOneUser(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(users, nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterInput{Email: "race@example.com", Password: "pw"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || users.count() != 1 {
		t.Errorf("succeeded = %d, users = %d, want 1 and 1", succeeded, users.count())
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	svc := newTestService(newMemUserRepo(), nil, nil)

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"empty email", RegisterInput{Email: "  ", Password: "pw"}, "email"},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "pw"}, "email"},
		{"display name email", RegisterInput{Email: "Bob <bob@example.com>", Password: "pw"}, "email"},
		{"empty password", RegisterInput{Email: "a@example.com"}, "password"},
		{"password too long", RegisterInput{Email: "a@example.com", Password: string(make([]byte, 73))}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			ve, ok := model.IsValidationError(err)
			if !ok {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestRegister_EmptyUsername_DerivedFromEmail(t *testing.T) {
	svc := newTestService(newMemUserRepo(), nil, nil)

	user, err := svc.Register(context.Background(), RegisterInput{Email: "writer@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Username != "writer" {
		t.Errorf("Username = %q, want %q", user.Username, "writer")
	}
}

func TestRegister_StoreError_Propagates(t *testing.T) {
	users := newMemUserRepo()
	users.createErr = errors.New("db down")
	svc := newTestService(users, nil, nil)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw"})
	if err == nil || errors.Is(err, model.ErrEmailTaken) {
		t.Fatalf("want infrastructure error, got %v", err)
	}
}

func TestLogin_CorrectAndWrongPassword(t *testing.T) {
	users := newMemUserRepo()
	rec := &recordingMetrics{}
	svc := newTestService(users, nil, rec)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "right"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	user, err := svc.Login(ctx, "BOB@example.com", "right")
	if err != nil {
		t.Fatalf("Login(correct) error: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("Login returned user %q, want %q", user.ID, registered.ID)
	}

	if _, err := svc.Login(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong) = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "right"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(unknown) = %v, want ErrInvalidCredentials", err)
	}

	want := []string{"local/authenticated", "local/rejected", "local/rejected"}
	if fmt.Sprint(rec.attempts) != fmt.Sprint(want) {
		t.Errorf("attempts = %v, want %v", rec.attempts, want)
	}
}

func TestLogin_LookupError_IsNotRejection(t *testing.T) {
	users := newMemUserRepo()
	users.findErr = errors.New("db down")
	svc := newTestService(users, nil, nil)

	_, err := svc.Login(context.Background(), "a@example.com", "pw")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want infrastructure error, got %v", err)
	}
}

func TestCompleteFederated_NewEmail_CreatesUserWithSentinel(t *testing.T) {
	users := newMemUserRepo()
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code string) (*FederatedProfile, error) {
			return &FederatedProfile{Provider: StrategyGoogle, Subject: "g-1", Email: "Carol@Gmail.com", EmailVerified: boolPtr(true)}, nil
		},
	}
	svc := newTestService(users, oauth, nil)
	ctx := context.Background()

	user, err := svc.CompleteFederated(ctx, "code")
	if err != nil {
		t.Fatalf("CompleteFederated error: %v", err)
	}
	if users.count() != 1 {
		t.Fatalf("user count = %d, want 1", users.count())
	}
	if user.Email != "carol@gmail.com" || user.Username != "carol" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.Password != model.FederatedPasswordSentinel {
		t.Errorf("Password = %q, want sentinel", user.Password)
	}

	// センチネル値はローカル認証で一致しない
	if _, err := svc.Login(ctx, "carol@gmail.com", model.FederatedPasswordSentinel); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login with sentinel = %v, want ErrInvalidCredentials", err)
	}

	// 2回目のログインでユーザーは増えない
	again, err := svc.CompleteFederated(ctx, "code")
	if err != nil {
		t.Fatalf("second CompleteFederated error: %v", err)
	}
	if again.ID != user.ID || users.count() != 1 {
		t.Errorf("second login created a new user: %+v (count %d)", again, users.count())
	}
}

func TestCompleteFederated_ExistingLocalUser_ReturnsItUnchanged(t *testing.T) {
	users := newMemUserRepo()
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code string) (*FederatedProfile, error) {
			return &FederatedProfile{Provider: StrategyGoogle, Subject: "g-2", Email: "dave@example.com"}, nil
		},
	}
	svc := newTestService(users, oauth, nil)
	ctx := context.Background()

	local, err := svc.Register(ctx, RegisterInput{Email: "dave@example.com", Password: "local-pw"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	user, err := svc.CompleteFederated(ctx, "code")
	if err != nil {
		t.Fatalf("CompleteFederated error: %v", err)
	}
	if user.ID != local.ID || user.Password != local.Password {
		t.Errorf("federated login should return existing user unchanged: %+v", user)
	}
	if _, err := svc.Login(ctx, "dave@example.com", "local-pw"); err != nil {
		t.Errorf("local login should still work: %v", err)
	}
}

func TestCompleteFederated_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		profile *FederatedProfile
	}{
		{"empty code", "", nil},
		{"empty email", "code", &FederatedProfile{Provider: StrategyGoogle, Subject: "s"}},
		{"unverified email", "code", &FederatedProfile{Provider: StrategyGoogle, Subject: "s", Email: "e@gmail.com", EmailVerified: boolPtr(false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newMemUserRepo()
			oauth := &mockOAuthProvider{
				exchangeFn: func(ctx context.Context, code string) (*FederatedProfile, error) {
					return tt.profile, nil
				},
			}
			svc := newTestService(users, oauth, nil)

			_, err := svc.CompleteFederated(context.Background(), tt.code)
			if !errors.Is(err, ErrFederatedRejected) {
				t.Fatalf("want ErrFederatedRejected, got %v", err)
			}
			if users.count() != 0 {
				t.Errorf("user count = %d, want 0", users.count())
			}
		})
	}
}

func TestCompleteFederated_ExchangeError(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code string) (*FederatedProfile, error) {
			return nil, errors.New("token endpoint unavailable")
		},
	}
	svc := newTestService(newMemUserRepo(), oauth, nil)

	_, err := svc.CompleteFederated(context.Background(), "code")
	if !errors.Is(err, ErrOAuthExchange) {
		t.Fatalf("expected ErrOAuthExchange, got %v", err)
	}
}

func TestLoginURL_DelegatesToProvider(t *testing.T) {
	oauth := &mockOAuthProvider{
		loginURLFn: func(state string) string { return "https://accounts.google.com/o/oauth2/auth?state=" + state },
	}
	svc := newTestService(newMemUserRepo(), oauth, nil)

	if got := svc.LoginURL("xyz"); got != "https://accounts.google.com/o/oauth2/auth?state=xyz" {
		t.Errorf("LoginURL() = %q", got)
	}
}

func TestCurrentUser(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(users, nil, nil)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Email: "eve@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := svc.CurrentUser(ctx, registered.ID)
	if err != nil || got == nil || got.ID != registered.ID {
		t.Errorf("CurrentUser(existing) = (%+v, %v)", got, err)
	}

	got, err = svc.CurrentUser(ctx, "user-999")
	if err != nil || got != nil {
		t.Errorf("CurrentUser(missing) = (%+v, %v), want (nil, nil)", got, err)
	}

	got, err = svc.CurrentUser(ctx, "")
	if err != nil || got != nil {
		t.Errorf("CurrentUser(\"\") = (%+v, %v), want (nil, nil)", got, err)
	}
}
