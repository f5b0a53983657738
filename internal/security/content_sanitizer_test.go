package security

import (
	"strings"
	"testing"

	"github.com/hitoshi/familycal/internal/model"
)

// TestSanitize_StripsAllTags は全てのHTMLタグが除去されることを検証する。
func TestSanitize_StripsAllTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		wantAbsent []string
	}{
		{
			name:  "プレーンテキストはそのまま通過する",
			input: "Rendez-vous dentiste à 14h",
			want:  "Rendez-vous dentiste à 14h",
		},
		{
			name:       "scriptタグが除去される",
			input:      `Piscine<script>alert('xss')</script>`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "装飾タグも除去されテキストのみ残る",
			input:      "<strong>Anniversaire</strong> de Léa",
			want:       "Anniversaire de Léa",
			wantAbsent: []string{"<strong"},
		},
		{
			name:       "imgタグが丸ごと除去される",
			input:      `Cours de piano<img src="https://example.com/x.png" onerror="alert(1)">`,
			wantAbsent: []string{"<img", "onerror"},
		},
		{
			name:       "aタグはテキストのみ残す",
			input:      `<a href="javascript:alert(1)">voir</a>`,
			want:       "voir",
			wantAbsent: []string{"javascript:", "<a"},
		},
		{
			name:  "空文字列は空文字列のまま",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if tt.want != "" || len(tt.wantAbsent) == 0 {
				if got != tt.want {
					t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力（冪等性）を検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `Goûter <em>d'anniversaire</em> <script>x()</script> chez Mamie`

	result1 := sanitizer.Sanitize(input)
	result2 := sanitizer.Sanitize(result1)

	if result1 != result2 {
		t.Errorf("冪等性違反: 1回目=%q, 2回目=%q", result1, result2)
	}
}

// TestSanitize_PreservesPlainPunctuation はタグでない記号が壊れないことを検証する。
func TestSanitize_PreservesPlainPunctuation(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := "Ciné & pizza, 15€/pers."
	got := sanitizer.Sanitize(input)
	if got != input {
		t.Errorf("Sanitize(%q) = %q, expected unchanged", input, got)
	}
}

// TestSanitizeEventInput は作成入力のテキストフィールドが全てサニタイズされることを検証する。
func TestSanitizeEventInput(t *testing.T) {
	sanitizer := NewContentSanitizer()

	in := &model.EventInput{
		Title:       `<script>steal()</script>Piscine`,
		Description: `<iframe src="https://evil.com"></iframe>apporter les maillots`,
		Place:       `<b>Piscine municipale</b>`,
	}
	sanitizer.SanitizeEventInput(in)

	if in.Title != "Piscine" {
		t.Errorf("Title = %q", in.Title)
	}
	if in.Description != "apporter les maillots" {
		t.Errorf("Description = %q", in.Description)
	}
	if in.Place != "Piscine municipale" {
		t.Errorf("Place = %q", in.Place)
	}
}

// TestSanitizeEventPatch はパッチのnilフィールドに触れないことを検証する。
func TestSanitizeEventPatch(t *testing.T) {
	sanitizer := NewContentSanitizer()

	title := `Dentiste<script>x()</script>`
	p := &model.EventPatch{Title: &title}
	sanitizer.SanitizeEventPatch(p)

	if *p.Title != "Dentiste" {
		t.Errorf("Title = %q", *p.Title)
	}
	if p.Description != nil || p.Place != nil {
		t.Error("untouched fields should stay nil")
	}
}

// TestContentSanitizerInterface はContentSanitizerServiceインターフェースの適合を検証する。
func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
