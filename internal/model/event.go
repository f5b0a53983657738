package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Event は共有カレンダー上の予定を表す。
// 作成したユーザーが所有するが、家族メンバー全員から閲覧・編集できる。
// 楽観ロックは持たない（last-writer-wins）。
type Event struct {
	ID            string
	Title         string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	UserID        string
	Color         string
	Link          string
	Place         string
	CostPerPerson *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EventInput はイベント作成・全体更新の入力フィールド。
// ID・タイムスタンプはバックエンドが生成するため含まない。
type EventInput struct {
	Title         string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	UserID        string
	Color         string
	Link          string
	Place         string
	CostPerPerson *float64
}

// EventPatch はイベントの部分更新を表す。nilのフィールドは変更しない。
type EventPatch struct {
	Title         *string
	Description   *string
	StartTime     *time.Time
	EndTime       *time.Time
	Color         *string
	Link          *string
	Place         *string
	CostPerPerson *float64
}

// EventColors はイベントに指定できる定義済みカラーパレット。
var EventColors = []string{
	"#C8102E", // 赤
	"#165B33", // 緑
	"#D4AF37", // 金
	"#3B82F6", // 青
	"#8B5CF6", // 紫
	"#EC4899", // ピンク
	"#F97316", // オレンジ
	"#EAB308", // 黄
}

// DefaultEventColor は新規イベントのデフォルトカラー。
const DefaultEventColor = "#C8102E"

var colorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

// Validate はイベント入力をクライアント側スキーマとして検証する。
// 不正な場合はvalidationカテゴリのAPIErrorを返す。
// ネットワーク呼び出しの前に必ず実行すること。
func (in *EventInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return NewValidationError("title is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return NewValidationError("start_time and end_time are required")
	}
	// end_time == start_time も拒否する
	if !in.EndTime.After(in.StartTime) {
		return NewValidationError("end_time must be after start_time")
	}
	if in.UserID == "" {
		return NewValidationError("user_id is required")
	}
	if in.Color != "" && !colorPattern.MatchString(in.Color) {
		return NewValidationError(fmt.Sprintf("invalid color: %s", in.Color))
	}
	if in.Link != "" {
		if err := validateLink(in.Link); err != nil {
			return err
		}
	}
	if in.CostPerPerson != nil && *in.CostPerPerson <= 0 {
		return NewValidationError("cost_per_person must be positive")
	}
	return nil
}

// Validate はイベントの部分更新入力を検証する。
// currentは更新対象の現在値で、時刻フィールドの片側のみの変更を検証するために使う。
func (p *EventPatch) Validate(current *Event) error {
	start := current.StartTime
	end := current.EndTime
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil {
		end = *p.EndTime
	}
	if !end.After(start) {
		return NewValidationError("end_time must be after start_time")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return NewValidationError("title is required")
	}
	if p.Color != nil && *p.Color != "" && !colorPattern.MatchString(*p.Color) {
		return NewValidationError(fmt.Sprintf("invalid color: %s", *p.Color))
	}
	if p.Link != nil && *p.Link != "" {
		if err := validateLink(*p.Link); err != nil {
			return err
		}
	}
	if p.CostPerPerson != nil && *p.CostPerPerson <= 0 {
		return NewValidationError("cost_per_person must be positive")
	}
	return nil
}

// validateLink はイベントに添付されたURLの形式を検証する。
func validateLink(link string) error {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError(fmt.Sprintf("invalid link URL: %s", link))
	}
	return nil
}
