package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/familycal/internal/eventstore"
	"github.com/hitoshi/familycal/internal/metrics"
	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/optimistic"
)

// EventStoreInterface はイベントハンドラーが必要とするストア操作。
type EventStoreInterface interface {
	Refresh(ctx context.Context) error
	Events() []model.Event
	Loaded() bool
	Create(ctx context.Context, input *model.EventInput) (*model.Event, error)
	Update(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

// SchedulerInterface はドラッグ&ドロップ由来の時間変更操作。
type SchedulerInterface interface {
	Reschedule(ctx context.Context, id string, newStart, newEnd time.Time) (*model.Event, error)
	Resize(ctx context.Context, id string, newEnd time.Time) (*model.Event, error)
}

// EventHandler はカレンダーイベントのCRUD HTTPハンドラー。
type EventHandler struct {
	store     EventStoreInterface
	scheduler SchedulerInterface
	metrics   metrics.MetricsCollector
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(store EventStoreInterface, scheduler SchedulerInterface, collector metrics.MetricsCollector) *EventHandler {
	return &EventHandler{
		store:     store,
		scheduler: scheduler,
		metrics:   collector,
	}
}

// eventResponse はイベントのJSON表現。
type eventResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	UserID        string    `json:"user_id"`
	Color         string    `json:"color"`
	Link          string    `json:"link,omitempty"`
	Place         string    `json:"place,omitempty"`
	CostPerPerson *float64  `json:"cost_per_person,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toEventResponse(ev *model.Event) eventResponse {
	return eventResponse{
		ID:            ev.ID,
		Title:         ev.Title,
		Description:   ev.Description,
		StartTime:     ev.StartTime,
		EndTime:       ev.EndTime,
		UserID:        ev.UserID,
		Color:         ev.Color,
		Link:          ev.Link,
		Place:         ev.Place,
		CostPerPerson: ev.CostPerPerson,
		CreatedAt:     ev.CreatedAt,
		UpdatedAt:     ev.UpdatedAt,
	}
}

// eventCreateRequest はイベント作成のリクエストボディ。
type eventCreateRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Color         string    `json:"color"`
	Link          string    `json:"link"`
	Place         string    `json:"place"`
	CostPerPerson *float64  `json:"cost_per_person"`
}

// eventPatchRequest はイベント部分更新のリクエストボディ。
// 欠けているフィールドは変更されない。
type eventPatchRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Color         *string    `json:"color"`
	Link          *string    `json:"link"`
	Place         *string    `json:"place"`
	CostPerPerson *float64   `json:"cost_per_person"`
}

// writeServiceError はドメインエラーをHTTPレスポンスに対応させる。
func (h *EventHandler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, eventstore.ErrEventGone) || errors.Is(err, optimistic.ErrUnknownEvent) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "EVENT_NOT_FOUND",
			Message:  "この予定は既に削除されています。",
			Category: "data",
			Action:   "カレンダーを再読み込みしてください。",
		})
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusInternalServerError
		switch apiErr.Category {
		case "validation":
			status = http.StatusBadRequest
		case "timeout":
			status = http.StatusGatewayTimeout
		case "auth":
			status = http.StatusUnauthorized
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	middleware.WriteInternalServerError(w)
}

// List は家族カレンダーの全イベントを開始時刻順で返す。
// GET /api/events
//
// バックエンド取得に失敗しても既読み込みのミラーがあればそれを返す。
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Refresh(r.Context()); err != nil {
		if !h.store.Loaded() {
			h.writeServiceError(w, err)
			return
		}
		// 取得失敗時は最後に成功したミラーをそのまま提供する
		w.Header().Set("X-Stale-Data", "true")
	}

	events := h.store.Events()
	resp := make([]eventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Create は新規イベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthError(err))
		return
	}

	var req eventCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}

	input := &model.EventInput{
		Title:         req.Title,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		UserID:        userID,
		Color:         req.Color,
		Link:          req.Link,
		Place:         req.Place,
		CostPerPerson: req.CostPerPerson,
	}

	created, err := h.store.Create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.RecordEventMutation("create")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEventResponse(created))
}

// Update はイベントを部分更新する。
// PATCH /api/events/{id}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req eventPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}

	patch := &model.EventPatch{
		Title:         req.Title,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Color:         req.Color,
		Link:          req.Link,
		Place:         req.Place,
		CostPerPerson: req.CostPerPerson,
	}

	updated, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.RecordEventMutation("update")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(updated))
}

// Delete はイベントを削除する。既に存在しない場合も成功として扱う。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.RecordEventMutation("delete")

	w.WriteHeader(http.StatusNoContent)
}

// scheduleRequest はドラッグ&ドロップ・リサイズ操作のリクエストボディ。
// start_timeを省略するとリサイズ（終了時刻のみの変更）として扱う。
type scheduleRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// Schedule はイベントの時間帯だけを変更する。
// PATCH /api/events/{id}/schedule
//
// 楽観的更新の永続化パス。失敗時はミラーが元の時間帯へ巻き戻される。
func (h *EventHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}
	if req.EndTime == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("end_time is required"))
		return
	}

	var updated *model.Event
	var err error
	var operation string
	if req.StartTime != nil {
		operation = "reschedule"
		updated, err = h.scheduler.Reschedule(r.Context(), id, *req.StartTime, *req.EndTime)
	} else {
		operation = "resize"
		updated, err = h.scheduler.Resize(r.Context(), id, *req.EndTime)
	}
	if err != nil {
		h.metrics.RecordOptimisticRevert(operation)
		h.writeServiceError(w, err)
		return
	}
	h.metrics.RecordEventMutation(operation)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(updated))
}
