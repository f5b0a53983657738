package handler

import (
	"context"
	"net/http"

	ics "github.com/arran4/golang-ical"

	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/model"
)

// ICSHandler は家族カレンダーをiCalendar形式でエクスポートする。
// 外部カレンダーアプリ（iOS標準カレンダー等）からの購読を想定する。
type ICSHandler struct {
	store interface {
		Refresh(ctx context.Context) error
		Events() []model.Event
		Loaded() bool
	}
	calendarName string
}

// NewICSHandler はICSHandlerを生成する。
func NewICSHandler(store EventStoreInterface, calendarName string) *ICSHandler {
	if calendarName == "" {
		calendarName = "Family Calendar"
	}
	return &ICSHandler{store: store, calendarName: calendarName}
}

// Export は全イベントをVCALENDARとして出力する。
// GET /calendar.ics
func (h *ICSHandler) Export(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Refresh(r.Context()); err != nil && !h.store.Loaded() {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewDataError("event list", err))
		return
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//familycal//JA")
	cal.SetName(h.calendarName)

	for _, ev := range h.store.Events() {
		ve := cal.AddEvent(ev.ID + "@familycal")
		ve.SetSummary(ev.Title)
		ve.SetStartAt(ev.StartTime)
		ve.SetEndAt(ev.EndTime)
		ve.SetDtStampTime(ev.UpdatedAt)
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Place != "" {
			ve.SetLocation(ev.Place)
		}
		if ev.Link != "" {
			ve.SetURL(ev.Link)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="family-calendar.ics"`)
	w.Write([]byte(cal.Serialize()))
}
