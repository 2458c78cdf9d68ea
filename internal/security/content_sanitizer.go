package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はブログ記事本文のHTMLをサニタイズする。
// 記事本文は保存前にサニタイズし、表示時はそのままHTMLとして出力する。
type ContentSanitizer interface {
	// Sanitize は許可リストに含まれるタグと属性のみを残したHTMLを返す。
	// プレーンテキストはHTMLエスケープされ、改行はそのまま保持される。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はbluemondayのポリシーを保持する。Policyはスレッドセーフ。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer は記事本文用のポリシーを構築する。
//   - 許可タグ: p, br, h2, h3, hr, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - aのhref: 絶対URLのみ、target="_blank"とrel="noopener noreferrer"を付与
//   - imgのsrc: httpsのみ
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "hr",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizer = (*contentSanitizer)(nil)
