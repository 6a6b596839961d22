// Package security はアプリケーションのセキュリティ機能を提供する。
//
// BodySanitizerService は予定本文のHTMLコンテンツをサニタイズし、
// XSS攻撃などのセキュリティリスクからクライアントを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BodySanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 正規化済み予定の本文をAPI応答に載せる前に使用される。
type BodySanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// imgタグのsrc属性はhttpsスキームとdata:image形式のdata URIのみ許可される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// bodySanitizer はBodySanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type bodySanitizer struct {
	policy *bluemonday.Policy
}

// NewBodySanitizer はBodySanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: Outlook由来の予定本文に現れる基本的な書式タグとテーブルタグ
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - imgのsrc属性: httpsスキームと画像data URI（埋め込み済みインライン画像）を許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を強制付与
func NewBodySanitizer() *bodySanitizer {
	p := bluemonday.NewPolicy()

	// 予定本文はOutlookが生成するHTMLのため、記事本文より広めの書式タグを許可する
	p.AllowElements(
		"p", "br", "div", "span",
		"ul", "ol", "li",
		"blockquote", "pre", "code", "hr",
		"b", "i", "u", "strong", "em",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tr", "td", "th",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// インライン画像はNormalizerがdata URIとして埋め込み済みのため、
	// httpsに加えてdata:image形式のみを通過させる
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	p.AllowURLSchemeWithCustomPolicy("data", func(u *url.URL) bool {
		return strings.HasPrefix(u.Opaque, "image")
	})

	return &bodySanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *bodySanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
