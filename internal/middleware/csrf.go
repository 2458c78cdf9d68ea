package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const (
	// CSRFFormField はフォームに埋め込むCSRFトークンのフィールド名。
	CSRFFormField = "csrf_token"

	// csrfHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFTokenSource はセッションに紐づくCSRFトークンを返す。
type CSRFTokenSource interface {
	CSRFToken(ctx context.Context) (string, error)
}

// NewCSRFMiddleware はセッションに保存したトークンとフォーム値を照合するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// 状態変更メソッドはcsrf_tokenフォーム値またはX-CSRF-Tokenヘッダーが一致しない場合に403を返す。
func NewCSRFMiddleware(tokens CSRFTokenSource, renderError ErrorRenderer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			expected, err := tokens.CSRFToken(r.Context())
			if err != nil {
				slog.Error("failed to load CSRF token", slog.String("error", err.Error()))
				renderError(w, r, http.StatusInternalServerError)
				return
			}

			submitted := r.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = r.PostFormValue(CSRFFormField)
			}

			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) != 1 {
				slog.Warn("CSRF validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("token_present", submitted != ""),
				)
				renderError(w, r, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
