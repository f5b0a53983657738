package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/familycal/internal/model"
)

// TestICSExport_SerializesEvents はイベントがVEVENTとして出力されることを検証する。
func TestICSExport_SerializesEvents(t *testing.T) {
	store := &mockEventStore{
		eventsFn: func() []model.Event {
			ev := testEvent("ev-1")
			ev.Place = "Cinéma Le Rex"
			return []model.Event{ev}
		},
		loaded: true,
	}
	h := NewICSHandler(store, "Famille")

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q, want text/calendar", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"UID:ev-1@familycal",
		"SUMMARY:Dîner de famille",
		"LOCATION:Cinéma Le Rex",
		"END:VCALENDAR",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("ICS output should contain %q", want)
		}
	}
}

// TestICSExport_RefreshFailure_NeverLoaded_Returns503 は一度も読み込めていない
// 状態での取得失敗が503になることを検証する。
func TestICSExport_RefreshFailure_NeverLoaded_Returns503(t *testing.T) {
	store := &mockEventStore{
		refreshFn: func(ctx context.Context) error {
			return model.NewDataError("event list", errors.New("connection refused"))
		},
		loaded: false,
	}
	h := NewICSHandler(store, "")

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
