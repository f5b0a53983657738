package handler

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// loginErrorMessages はコールバックのエラータグに対応する表示メッセージ。
var loginErrorMessages = map[string]string{
	"missing_params": "リンクのパラメータが不足しています。もう一度ログインしてください。",
	"auth_error":     "ログインの確認に失敗しました。もう一度お試しください。",
	"exchange_error": "ログインリンクが無効か期限切れです。新しいリンクを発行してください。",
	"verify_error":   "ログインリンクの検証に失敗しました。新しいリンクを発行してください。",
}

// MemberListerInterface はログイン画面のメンバー一覧取得インターフェース。
type MemberListerInterface interface {
	ListMembers(ctx context.Context) ([]model.User, error)
}

// PageHandlerConfig はページ描画の設定。
type PageHandlerConfig struct {
	FirstDay string // 週の開始曜日
	Currency string // cost_per_person の通貨記号
}

// PageHandler はHTMLページを描画する。
type PageHandler struct {
	members   MemberListerInterface
	store     EventStoreInterface
	resolver  SessionResolver
	config    PageHandlerConfig
	templates *template.Template
}

// NewPageHandler はPageHandlerを生成する。テンプレートはバイナリに埋め込まれる。
func NewPageHandler(members MemberListerInterface, store EventStoreInterface, resolver SessionResolver, config PageHandlerConfig) (*PageHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		members:   members,
		store:     store,
		resolver:  resolver,
		config:    config,
		templates: tmpl,
	}, nil
}

// Home は認証状態に応じてカレンダーまたはログイン画面へ振り分ける。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	snap := h.resolver.Resolve(w, r)
	if snap.State == session.StateAuthenticated {
		http.Redirect(w, r, "/calendar", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// loginPageData はログインテンプレートに渡すデータ。
type loginPageData struct {
	Members      []model.User
	ErrorMessage string
	Next         string
}

// Login はメンバー選択式のログイン画面を描画する。
// GET /login?error=auth_error&next=/calendar
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{
		Next: sanitizeNext(r.URL.Query().Get("next")),
	}

	if tag := r.URL.Query().Get("error"); tag != "" {
		msg, ok := loginErrorMessages[tag]
		if !ok {
			msg = loginErrorMessages["auth_error"]
		}
		data.ErrorMessage = msg
	}

	members, err := h.members.ListMembers(r.Context())
	if err != nil {
		// メンバー一覧が取れなくてもメール入力でのログインは可能
		slog.Warn("failed to load member list for login page", slog.String("error", err.Error()))
	} else {
		data.Members = members
	}

	h.render(w, "login.html", data)
}

// calendarPageData はカレンダーテンプレートに渡すデータ。
type calendarPageData struct {
	User        *model.User
	WeekStart   time.Time
	WeekDays    []time.Time
	EventsJSON  template.JS
	ColorsJSON  template.JS
	Currency    string
	StaleNotice bool
}

// Calendar は週表示のカレンダー画面を描画する。
// GET /calendar?week=2026-09-07
//
// イベントはJSONとして埋め込み、ドラッグ&ドロップや楽観的更新は
// クライアントスクリプトが /api/events 系エンドポイントを通じて行う。
func (h *PageHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	stale := false
	if err := h.store.Refresh(r.Context()); err != nil {
		if !h.store.Loaded() {
			middleware.WriteInternalServerError(w)
			return
		}
		stale = true
	}

	weekStart := startOfWeek(parseWeekParam(r.URL.Query().Get("week")), h.config.FirstDay)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = weekStart.AddDate(0, 0, i)
	}

	events := h.store.Events()
	resp := make([]eventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}
	eventsJSON, err := json.Marshal(resp)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	colorsJSON, _ := json.Marshal(model.EventColors)

	h.render(w, "calendar.html", calendarPageData{
		User:        user,
		WeekStart:   weekStart,
		WeekDays:    days,
		EventsJSON:  template.JS(eventsJSON),
		ColorsJSON:  template.JS(colorsJSON),
		Currency:    h.config.Currency,
		StaleNotice: stale,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template rendering failed",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// parseWeekParam はweekクエリパラメータを解釈する。不正な値は今日として扱う。
func parseWeekParam(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Now()
	}
	return t
}

// startOfWeek はtを含む週の開始日（0時0分）を返す。
func startOfWeek(t time.Time, firstDay string) time.Time {
	first := time.Monday
	if firstDay == "sunday" {
		first = time.Sunday
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
