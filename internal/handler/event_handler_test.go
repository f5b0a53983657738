package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/familycal/internal/eventstore"
	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/model"
)

// --- モック ---

type mockEventStore struct {
	refreshFn func(ctx context.Context) error
	eventsFn  func() []model.Event
	loaded    bool
	createFn  func(ctx context.Context, input *model.EventInput) (*model.Event, error)
	updateFn  func(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockEventStore) Refresh(ctx context.Context) error {
	if m.refreshFn != nil {
		return m.refreshFn(ctx)
	}
	return nil
}

func (m *mockEventStore) Events() []model.Event {
	if m.eventsFn != nil {
		return m.eventsFn()
	}
	return nil
}

func (m *mockEventStore) Loaded() bool { return m.loaded }

func (m *mockEventStore) Create(ctx context.Context, input *model.EventInput) (*model.Event, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return nil, errors.New("not configured")
}

func (m *mockEventStore) Update(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil, errors.New("not configured")
}

func (m *mockEventStore) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockScheduler struct {
	rescheduleFn func(ctx context.Context, id string, newStart, newEnd time.Time) (*model.Event, error)
	resizeFn     func(ctx context.Context, id string, newEnd time.Time) (*model.Event, error)
}

func (m *mockScheduler) Reschedule(ctx context.Context, id string, newStart, newEnd time.Time) (*model.Event, error) {
	if m.rescheduleFn != nil {
		return m.rescheduleFn(ctx, id, newStart, newEnd)
	}
	return nil, errors.New("not configured")
}

func (m *mockScheduler) Resize(ctx context.Context, id string, newEnd time.Time) (*model.Event, error) {
	if m.resizeFn != nil {
		return m.resizeFn(ctx, id, newEnd)
	}
	return nil, errors.New("not configured")
}

// nopMetrics はテスト用の空実装。巻き戻し回数だけ記録する。
type nopMetrics struct {
	reverts int
}

func (n *nopMetrics) RecordAuthOutcome(operation string, success bool) {}
func (n *nopMetrics) RecordSessionCheckLatency(duration time.Duration) {}
func (n *nopMetrics) RecordTimeout(operation string) {}
func (n *nopMetrics) RecordEventMutation(operation string) {}
func (n *nopMetrics) RecordOptimisticRevert(operation string) { n.reverts++ }
func (n *nopMetrics) RecordHTTPStatus(statusCode int) {}
func (n *nopMetrics) RecordStreamSubscribers(count int) {}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func authedCtx(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), &model.User{ID: userID}))
}

func testEvent(id string) model.Event {
	start := time.Date(2026, 9, 7, 19, 0, 0, 0, time.UTC)
	return model.Event{
		ID:        id,
		Title:     "Dîner de famille",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		UserID:    "u1",
		Color:     model.DefaultEventColor,
	}
}

// --- 一覧 ---

// TestList_ReturnsEvents はイベント一覧がJSONで返ることを検証する。
func TestList_ReturnsEvents(t *testing.T) {
	store := &mockEventStore{
		eventsFn: func() []model.Event {
			return []model.Event{testEvent("ev-1"), testEvent("ev-2")}
		},
		loaded: true,
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []eventResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("len = %d, want 2", len(resp))
	}
	if resp[0].ID != "ev-1" {
		t.Errorf("first event ID = %q, want ev-1", resp[0].ID)
	}
}

// TestList_RefreshFailure_ServesStaleMirror は取得失敗時に
// 最後に成功したデータが返ることを検証する。
func TestList_RefreshFailure_ServesStaleMirror(t *testing.T) {
	store := &mockEventStore{
		refreshFn: func(ctx context.Context) error {
			return model.NewDataError("event list", errors.New("connection refused"))
		},
		eventsFn: func() []model.Event { return []model.Event{testEvent("ev-1")} },
		loaded:   true,
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (stale data should be served)", w.Code)
	}
	if w.Header().Get("X-Stale-Data") != "true" {
		t.Error("X-Stale-Data header should mark stale responses")
	}
}

// TestList_RefreshFailure_NeverLoaded_ReturnsError は一度も読み込めていない
// 状態での取得失敗がエラーになることを検証する。
func TestList_RefreshFailure_NeverLoaded_ReturnsError(t *testing.T) {
	store := &mockEventStore{
		refreshFn: func(ctx context.Context) error {
			return model.NewDataError("event list", errors.New("connection refused"))
		},
		loaded: false,
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// --- 作成 ---

// TestCreate_UsesAuthenticatedUserID は作成イベントの所有者が
// リクエストボディではなく認証コンテキストから決まることを検証する。
func TestCreate_UsesAuthenticatedUserID(t *testing.T) {
	var gotInput *model.EventInput
	store := &mockEventStore{
		createFn: func(ctx context.Context, input *model.EventInput) (*model.Event, error) {
			gotInput = input
			ev := testEvent("ev-new")
			ev.Title = input.Title
			return &ev, nil
		},
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	body := `{"title":"Ciné","start_time":"2026-09-08T20:00:00Z","end_time":"2026-09-08T22:00:00Z","user_id":"forged"}`
	req := authedCtx(httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotInput.UserID != "u1" {
		t.Errorf("input.UserID = %q, want u1 (from auth context)", gotInput.UserID)
	}
}

// TestCreate_ValidationError_Returns400 は検証エラーが400になることを検証する。
func TestCreate_ValidationError_Returns400(t *testing.T) {
	store := &mockEventStore{
		createFn: func(ctx context.Context, input *model.EventInput) (*model.Event, error) {
			return nil, model.NewValidationError("end_time must be after start_time")
		},
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	body := `{"title":"x","start_time":"2026-09-08T20:00:00Z","end_time":"2026-09-08T20:00:00Z"}`
	req := authedCtx(httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body)), "u1")
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// TestCreate_Unauthenticated_Returns401 はコンテキスト未設定の作成が401になることを検証する。
func TestCreate_Unauthenticated_Returns401(t *testing.T) {
	h := NewEventHandler(&mockEventStore{}, &mockScheduler{}, &nopMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// --- 部分更新 ---

// TestUpdate_PassesPatchFields は指定フィールドだけがパッチに乗ることを検証する。
func TestUpdate_PassesPatchFields(t *testing.T) {
	var gotPatch *model.EventPatch
	store := &mockEventStore{
		updateFn: func(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error) {
			gotPatch = patch
			ev := testEvent(id)
			return &ev, nil
		},
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-1",
		strings.NewReader(`{"title":"Nouveau titre"}`)), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotPatch.Title == nil || *gotPatch.Title != "Nouveau titre" {
		t.Errorf("patch.Title = %v", gotPatch.Title)
	}
	if gotPatch.Description != nil || gotPatch.StartTime != nil {
		t.Error("omitted fields must stay nil in the patch")
	}
}

// TestUpdate_EventGone_Returns404 は更新対象消失時の404を検証する。
func TestUpdate_EventGone_Returns404(t *testing.T) {
	store := &mockEventStore{
		updateFn: func(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error) {
			return nil, model.NewDataError("event update", eventstore.ErrEventGone)
		},
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-gone",
		strings.NewReader(`{"title":"x"}`)), "id", "ev-gone")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// --- 削除 ---

// TestDelete_Returns204 は削除成功時の204を検証する。
func TestDelete_Returns204(t *testing.T) {
	var gotID string
	store := &mockEventStore{
		deleteFn: func(ctx context.Context, id string) error {
			gotID = id
			return nil
		},
	}
	h := NewEventHandler(store, &mockScheduler{}, &nopMetrics{})

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/events/ev-1", nil), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if gotID != "ev-1" {
		t.Errorf("deleted ID = %q, want ev-1", gotID)
	}
}

// --- 時間帯変更 ---

// TestSchedule_WithStartTime_Reschedules はstart_time付きリクエストが
// 移動として処理されることを検証する。
func TestSchedule_WithStartTime_Reschedules(t *testing.T) {
	newStart := time.Date(2026, 9, 9, 18, 0, 0, 0, time.UTC)
	newEnd := newStart.Add(2 * time.Hour)

	scheduler := &mockScheduler{
		rescheduleFn: func(ctx context.Context, id string, gotStart, gotEnd time.Time) (*model.Event, error) {
			if !gotStart.Equal(newStart) || !gotEnd.Equal(newEnd) {
				t.Errorf("reschedule(%v, %v), want (%v, %v)", gotStart, gotEnd, newStart, newEnd)
			}
			ev := testEvent(id)
			ev.StartTime = gotStart
			ev.EndTime = gotEnd
			return &ev, nil
		},
	}
	h := NewEventHandler(&mockEventStore{}, scheduler, &nopMetrics{})

	body := `{"start_time":"2026-09-09T18:00:00Z","end_time":"2026-09-09T20:00:00Z"}`
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-1/schedule",
		strings.NewReader(body)), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Schedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// TestSchedule_EndTimeOnly_Resizes はend_timeのみのリクエストが
// リサイズとして処理されることを検証する。
func TestSchedule_EndTimeOnly_Resizes(t *testing.T) {
	resizeCalled := false
	scheduler := &mockScheduler{
		resizeFn: func(ctx context.Context, id string, newEnd time.Time) (*model.Event, error) {
			resizeCalled = true
			ev := testEvent(id)
			ev.EndTime = newEnd
			return &ev, nil
		},
	}
	h := NewEventHandler(&mockEventStore{}, scheduler, &nopMetrics{})

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-1/schedule",
		strings.NewReader(`{"end_time":"2026-09-07T23:00:00Z"}`)), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Schedule(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !resizeCalled {
		t.Error("Resize should be used when start_time is omitted")
	}
}

// TestSchedule_MissingEndTime_Returns400 はend_time欠落時の400を検証する。
func TestSchedule_MissingEndTime_Returns400(t *testing.T) {
	h := NewEventHandler(&mockEventStore{}, &mockScheduler{}, &nopMetrics{})

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-1/schedule",
		strings.NewReader(`{"start_time":"2026-09-09T18:00:00Z"}`)), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Schedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// TestSchedule_PersistFailure_RecordsRevert は永続化失敗時に
// 巻き戻しメトリクスが記録されることを検証する。
func TestSchedule_PersistFailure_RecordsRevert(t *testing.T) {
	scheduler := &mockScheduler{
		rescheduleFn: func(ctx context.Context, id string, newStart, newEnd time.Time) (*model.Event, error) {
			return nil, model.NewDataError("event update", errors.New("connection refused"))
		},
	}
	collector := &nopMetrics{}
	h := NewEventHandler(&mockEventStore{}, scheduler, collector)

	body := `{"start_time":"2026-09-09T18:00:00Z","end_time":"2026-09-09T20:00:00Z"}`
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/events/ev-1/schedule",
		strings.NewReader(body)), "id", "ev-1")
	w := httptest.NewRecorder()
	h.Schedule(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if collector.reverts != 1 {
		t.Errorf("revert metric count = %d, want 1", collector.reverts)
	}
}
