// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は予定のタイトル・説明・場所などの自由入力テキストを
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicyを使用し、HTMLタグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/familycal/internal/model"
)

// ContentSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// 予定の保存・更新の境界で使用される。
type ContentSanitizerService interface {
	// Sanitize は自由入力テキストからHTMLタグを全て除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string

	// SanitizeEventInput は予定作成入力のテキストフィールドをその場でサニタイズする。
	SanitizeEventInput(in *model.EventInput)

	// SanitizeEventPatch は予定更新パッチのテキストフィールドをその場でサニタイズする。
	// nilフィールド（未変更）には触れない。
	SanitizeEventPatch(p *model.EventPatch)
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 予定のフィールドはHTMLを持たないプレーンテキストであるため、
// タグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() ContentSanitizerService {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は自由入力テキストからHTMLタグを全て除去して返す。
// bluemondayはタグ除去後にエンティティエンコードを施すため、
// プレーンテキストに戻してから返す（保存値はテキストであり、
// エスケープは表示層のhtml/templateが担う）。
func (s *contentSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// SanitizeEventInput は予定作成入力のテキストフィールドをその場でサニタイズする。
func (s *contentSanitizer) SanitizeEventInput(in *model.EventInput) {
	in.Title = s.Sanitize(in.Title)
	in.Description = s.Sanitize(in.Description)
	in.Place = s.Sanitize(in.Place)
}

// SanitizeEventPatch は予定更新パッチのテキストフィールドをその場でサニタイズする。
func (s *contentSanitizer) SanitizeEventPatch(p *model.EventPatch) {
	if p.Title != nil {
		v := s.Sanitize(*p.Title)
		p.Title = &v
	}
	if p.Description != nil {
		v := s.Sanitize(*p.Description)
		p.Description = &v
	}
	if p.Place != nil {
		v := s.Sanitize(*p.Place)
		p.Place = &v
	}
}
