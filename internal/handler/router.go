package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions      SessionManager
	Views         PageRenderer
	Logger        *slog.Logger
	Metrics       metrics.MetricsCollector
	RateLimiter   *middleware.RateLimiter
	HealthChecker HealthChecker

	// MetricsHandler がnilの場合は/metricsを公開しない。
	MetricsHandler http.Handler

	// サービス
	AuthService AuthServiceInterface
	PostService PostServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → Metrics → SecurityHeaders
//	  → Session(LoadAndSave) → CurrentUser → [RequireAuth] → CSRF → [RateLimit]
//
// /static、/health、/metricsはセッションを読み込まない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	rs := &responder{sessions: deps.Sessions, views: deps.Views}
	pages := &PageHandler{responder: rs}
	authHandler := &AuthHandler{responder: rs, service: deps.AuthService}
	postHandler := &PostHandler{responder: rs, service: deps.PostService}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(rs.RenderError))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.NotFound(pages.NotFound)

	// --- セッション不要のルート ---
	r.Handle("/static/*", http.StripPrefix("/static/", view.StaticHandler()))
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- ページ ---
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.Middleware)
		r.Use(middleware.NewCurrentUserMiddleware(deps.Sessions, deps.AuthService, rs.RenderError))

		csrf := middleware.NewCSRFMiddleware(deps.Sessions, rs.RenderError)

		r.Group(func(r chi.Router) {
			r.Use(csrf)

			r.Get("/", pages.Home)
			r.Get("/login", pages.LoginForm)
			r.Get("/register", pages.RegisterForm)
			r.Get("/logout", authHandler.Logout)

			// パスワード総当たり対策としてIP単位で制限する
			limited := r.With()
			if deps.RateLimiter != nil {
				limited = r.With(deps.RateLimiter.Middleware())
			}
			limited.Post("/login", authHandler.Login)
			limited.Post("/register", authHandler.Register)

			r.Get("/auth/google", authHandler.GoogleLogin)
			r.Get("/auth/google/secrets", authHandler.GoogleCallback)
		})

		// --- ログインが必要なルート ---
		// 未ログインならCSRF検証より先に/loginへリダイレクトする
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(csrf)

			r.Get("/blogpost", postHandler.NewForm)
			r.Post("/blogpost", postHandler.Create)
			r.Get("/blogpostdisplay", postHandler.List)
		})
	})

	return r
}
