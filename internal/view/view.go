// Package view はサーバーサイドHTMLの描画と静的ファイル配信を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページ名。テンプレートファイル名から拡張子を除いたもの。
const (
	PageHome            = "home"
	PageLogin           = "login"
	PageRegister        = "register"
	PageBlogPost        = "blogpost"
	PageBlogPostDisplay = "blogpostdisplay"
	PageError           = "error"
)

// PageData はテンプレートに渡す値。
type PageData struct {
	User      *model.User
	CSRFToken string
	Flash     string
	Form      map[string]string
	Posts     []*model.Post

	// エラーページ用
	Status  int
	Message string
}

// Renderer はレイアウトと各ページを組み合わせたテンプレートを保持する。
// 起動時に1回だけパースし、以後は並行に使用できる。
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	// postContent は保存時にサニタイズ済みの記事本文をそのまま出力する。
	"postContent": func(s string) template.HTML {
		return template.HTML(s)
	},
}

// New は埋め込みテンプレートをパースしてRendererを生成する。
func New() (*Renderer, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout template: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".html")
		if name == "layout" {
			continue
		}
		base, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout: %w", err)
		}
		tmpl, err := base.ParseFS(templateFS, f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", f, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Render はページを描画してstatusとともに書き込む。
// 描画に失敗した場合はレスポンスに何も書き込まずにエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler は埋め込みの静的ファイルを配信するハンドラーを返す。
// /static/ プレフィックスは呼び出し側で取り除く。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("invalid static filesystem: %v", err))
	}
	return http.FileServer(http.FS(sub))
}
