package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// 認証方式の識別子。メトリクスのラベルにも使用する。
const (
	StrategyLocal  = "local"
	StrategyGoogle = "google"
)

// Credentials は認証方式ごとの入力を表すタグ付きバリアント。
// 実装はLocalCredentialsとFederatedProfileのみ。
type Credentials interface {
	strategy() string
}

// LocalCredentials はメールアドレスとパスワードによる認証入力。
type LocalCredentials struct {
	Email    string
	Password string
}

func (LocalCredentials) strategy() string { return StrategyLocal }

// FederatedProfile は外部IdPが返したユーザー情報。
// EmailVerifiedはIdPが値を返さなかった場合nil。
type FederatedProfile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified *bool
	Name          string
}

func (p FederatedProfile) strategy() string { return p.Provider }

// Outcome は認証の結果。ゼロ値はOutcomeRejected。
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAuthenticated
)

// String はメトリクスとログで使用する表記を返す。
func (o Outcome) String() string {
	if o == OutcomeAuthenticated {
		return "authenticated"
	}
	return "rejected"
}

// Result は認証方式の判定結果。UserはOutcomeAuthenticatedの場合のみ設定される。
// Createdは外部IdPの初回ログインでユーザーを作成した場合にtrue。
type Result struct {
	Outcome Outcome
	User    *model.User
	Created bool
}

// Strategy は資格情報からユーザーを解決する認証方式。
// 拒否はResultで表し、errorはDB障害などのインフラ障害に限る。
type Strategy interface {
	Resolve(ctx context.Context, creds Credentials) (Result, error)
}

// NormalizeEmail は前後の空白を除去し小文字化する。
// 検索と保存の前に必ず適用する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// usernameFromEmail はメールアドレスのローカル部をユーザー名として返す。
func usernameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// LocalStrategy はメールアドレスとパスワードで認証する。
// 未登録のメールアドレスとパスワード不一致は区別せず拒否する。
type LocalStrategy struct {
	users  repository.UserRepository
	hasher *PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// NewLocalStrategy はLocalStrategyを生成する。
func NewLocalStrategy(users repository.UserRepository, hasher *PasswordHasher) *LocalStrategy {
	return &LocalStrategy{users: users, hasher: hasher}
}

// Resolve はLocalCredentialsを検証する。
func (s *LocalStrategy) Resolve(ctx context.Context, creds Credentials) (Result, error) {
	c, ok := creds.(LocalCredentials)
	if !ok {
		return Result{}, fmt.Errorf("local strategy: unsupported credentials %q", creds.strategy())
	}

	email := NormalizeEmail(c.Email)
	if email == "" || c.Password == "" {
		return Result{Outcome: OutcomeRejected}, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find user for login: %w", err)
	}
	if user == nil {
		// 応答時間から登録有無を推測されないよう、未登録でも照合処理を行う
		_, _ = s.hasher.Verify(s.timingHash(), c.Password)
		return Result{Outcome: OutcomeRejected}, nil
	}
	if user.IsFederatedOnly() {
		return Result{Outcome: OutcomeRejected}, nil
	}

	ok, err = s.hasher.Verify(user.Password, c.Password)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: OutcomeRejected}, nil
	}

	return Result{Outcome: OutcomeAuthenticated, User: user}, nil
}

func (s *LocalStrategy) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("blogman-timing-equalizer")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// FederatedStrategy は外部IdPのプロフィールからユーザーを解決する。
// メールアドレスが一致する既存ユーザーがいればそのユーザーを返し、
// いなければセンチネルパスワードで作成する。
type FederatedStrategy struct {
	users repository.UserRepository
}

// NewFederatedStrategy はFederatedStrategyを生成する。
func NewFederatedStrategy(users repository.UserRepository) *FederatedStrategy {
	return &FederatedStrategy{users: users}
}

// Resolve はFederatedProfileを検証し、ユーザーを取得または作成する。
func (s *FederatedStrategy) Resolve(ctx context.Context, creds Credentials) (Result, error) {
	p, ok := creds.(FederatedProfile)
	if !ok {
		return Result{}, fmt.Errorf("federated strategy: unsupported credentials %q", creds.strategy())
	}

	email := NormalizeEmail(p.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Result{Outcome: OutcomeRejected}, nil
	}
	if p.EmailVerified != nil && !*p.EmailVerified {
		return Result{Outcome: OutcomeRejected}, nil
	}

	user, created, err := s.users.FindOrCreateFederated(ctx, &model.User{
		Username: usernameFromEmail(email),
		Email:    email,
		Password: model.FederatedPasswordSentinel,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve federated user: %w", err)
	}

	return Result{Outcome: OutcomeAuthenticated, User: user, Created: created}, nil
}

// compile-time interface check
var (
	_ Strategy = (*LocalStrategy)(nil)
	_ Strategy = (*FederatedStrategy)(nil)
)
