// Package auth はローカル認証とGoogle OAuthによる認証、ユーザー登録を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っている場合のエラー。
	// 未登録のメールアドレスとパスワード不一致を区別しない。
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrFederatedRejected は外部IdPでのログインを受け付けられない場合のエラー。
	ErrFederatedRejected = errors.New("federated login rejected")

	// ErrOAuthExchange は認可コードの交換またはプロフィール取得に失敗した場合のエラー。
	ErrOAuthExchange = errors.New("oauth code exchange failed")
)

// maxFieldLength はusersテーブルのVARCHARカラムの長さ。
const maxFieldLength = 255

// RegisterInput はユーザー登録フォームの入力。
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Service は認証とユーザー登録のビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	hasher    *PasswordHasher
	local     Strategy
	federated Strategy
	oauth     OAuthProvider
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	users repository.UserRepository,
	hasher *PasswordHasher,
	oauth OAuthProvider,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		local:     NewLocalStrategy(users, hasher),
		federated: NewFederatedStrategy(users),
		oauth:     oauth,
		metrics:   collector,
	}
}

// Register はローカル認証のユーザーを作成する。
// メールアドレスが登録済みの場合はmodel.ErrEmailTakenを返し、ユーザーは作成しない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	user, err := s.newLocalUser(in)
	if err != nil {
		s.metrics.RecordRegistration("invalid")
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			s.metrics.RecordRegistration("email_taken")
			return nil, model.ErrEmailTaken
		}
		s.metrics.RecordRegistration("error")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordRegistration("created")
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("strategy", StrategyLocal),
	)
	return user, nil
}

// newLocalUser は入力を検証し、パスワードをハッシュ化したユーザーを組み立てる。
func (s *Service) newLocalUser(in RegisterInput) (*model.User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, model.NewValidationError("email", "Email is required.")
	}
	if len(email) > maxFieldLength {
		return nil, model.NewValidationError("email", "Email is too long.")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewValidationError("email", "Email address is not valid.")
	}

	if in.Password == "" {
		return nil, model.NewValidationError("password", "Password is required.")
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, model.NewValidationError("password", "Password must be at most 72 bytes.")
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = usernameFromEmail(email)
	}
	if utf8.RuneCountInString(username) > maxFieldLength {
		return nil, model.NewValidationError("username", "Username is too long.")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	return &model.User{
		Username: username,
		Email:    email,
		Password: hash,
	}, nil
}

// Login はメールアドレスとパスワードでユーザーを認証する。
// 認証できない場合はErrInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	res, err := s.local.Resolve(ctx, LocalCredentials{Email: email, Password: password})
	if err != nil {
		s.metrics.RecordAuthAttempt(StrategyLocal, "error")
		return nil, err
	}

	s.metrics.RecordAuthAttempt(StrategyLocal, res.Outcome.String())
	if res.Outcome != OutcomeAuthenticated {
		return nil, ErrInvalidCredentials
	}

	slog.Info("user logged in",
		slog.String("user_id", res.User.ID),
		slog.String("strategy", StrategyLocal),
	)
	return res.User, nil
}

// LoginURL は外部IdPの認可URLを返す。
func (s *Service) LoginURL(state string) string {
	return s.oauth.LoginURL(state)
}

// CompleteFederated は認可コードを交換し、対応するユーザーを取得または作成する。
// IdPがログインを受け付けない場合やプロフィールが不適切な場合はErrFederatedRejectedを返す。
func (s *Service) CompleteFederated(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		s.metrics.RecordAuthAttempt(StrategyGoogle, OutcomeRejected.String())
		return nil, ErrFederatedRejected
	}

	profile, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.metrics.RecordAuthAttempt(StrategyGoogle, "error")
		return nil, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}

	res, err := s.federated.Resolve(ctx, *profile)
	if err != nil {
		s.metrics.RecordAuthAttempt(profile.Provider, "error")
		return nil, err
	}

	s.metrics.RecordAuthAttempt(profile.Provider, res.Outcome.String())
	if res.Outcome != OutcomeAuthenticated {
		return nil, ErrFederatedRejected
	}

	if res.Created {
		s.metrics.RecordRegistration("created")
		slog.Info("user registered",
			slog.String("user_id", res.User.ID),
			slog.String("strategy", profile.Provider),
		)
	}
	slog.Info("user logged in",
		slog.String("user_id", res.User.ID),
		slog.String("strategy", profile.Provider),
	)
	return res.User, nil
}

// CurrentUser はセッションに保存されたユーザーIDからユーザーを取得する。
// ユーザーが存在しない場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current user: %w", err)
	}
	return user, nil
}
