// Package optimistic はドラッグ移動・リサイズの楽観的反映を調停する。
//
// 変更はまず手元のミラーに即時反映し、その後バックエンドへ永続化する。
// 永続化に失敗した場合は元の時刻へちょうど一度だけ巻き戻す。
// 永続化の手段が与えられていない場合は常に巻き戻す。
package optimistic

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/familycal/internal/model"
)

// LocalStore は手元ミラーの参照と時刻の即時反映を抽象化する。
type LocalStore interface {
	Find(id string) *model.Event
	ApplySchedule(id string, start, end time.Time) bool
}

// PersistFunc は時刻変更をバックエンドへ永続化する。
type PersistFunc func(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error)

// Coordinator は楽観的なスケジュール変更の適用と巻き戻しを行う。
type Coordinator struct {
	store   LocalStore
	persist PersistFunc
	logger  *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。persistはnilでもよい。
func NewCoordinator(store LocalStore, persist PersistFunc, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, persist: persist, logger: logger}
}

// Reschedule は予定を新しい開始・終了時刻へ移動する。
// 継続時間は呼び出し側が保ったまま渡すことを想定する。
func (c *Coordinator) Reschedule(ctx context.Context, id string, newStart, newEnd time.Time) (*model.Event, error) {
	return c.apply(ctx, id, newStart, newEnd, "予定の移動に失敗しました")
}

// Resize は予定の終了時刻だけを変更する。
func (c *Coordinator) Resize(ctx context.Context, id string, newEnd time.Time) (*model.Event, error) {
	current := c.store.Find(id)
	if current == nil {
		return nil, model.NewDataError("event resize", ErrUnknownEvent)
	}
	return c.apply(ctx, id, current.StartTime, newEnd, "予定の長さ変更に失敗しました")
}

func (c *Coordinator) apply(ctx context.Context, id string, newStart, newEnd time.Time, failureMessage string) (*model.Event, error) {
	current := c.store.Find(id)
	if current == nil {
		return nil, model.NewDataError("event reschedule", ErrUnknownEvent)
	}
	prevStart, prevEnd := current.StartTime, current.EndTime

	if !c.store.ApplySchedule(id, newStart, newEnd) {
		return nil, model.NewDataError("event reschedule", ErrUnknownEvent)
	}

	revert := func() {
		if !c.store.ApplySchedule(id, prevStart, prevEnd) {
			c.logger.Warn("revert target vanished from the mirror", "event_id", id)
		}
	}

	if c.persist == nil {
		revert()
		return nil, model.NewValidationError("schedule changes are read-only here")
	}

	updated, err := c.persist(ctx, id, &model.EventPatch{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	if err != nil {
		revert()
		c.logger.Warn(failureMessage,
			"event_id", id,
			"error", err,
		)
		return nil, err
	}
	return updated, nil
}
