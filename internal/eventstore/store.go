// Package eventstore は予定コレクションの読み書きと、その手元ミラーの維持を提供する。
//
// ミラーは画面が常に参照する唯一の予定一覧であり、書き込みの成否に応じて
// 次の規則で更新される。
//   - 一覧取得の成功時はミラー全体を取得結果で置き換える。
//   - 一覧取得の失敗時は手元の内容をそのまま残す（古い表示は空表示に勝る）。
//   - 作成・更新の成功時はバックエンドが返した正準行を反映する。
//   - 削除は該当IDを取り除くだけで、無ければ何もしない。
package eventstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/repository"
	"github.com/hitoshi/familycal/internal/security"
	"github.com/hitoshi/familycal/internal/timeout"
)

// Store は予定の操作境界。検証とサニタイズはここで行い、
// 不正な入力はバックエンドに到達させない。
type Store struct {
	repo        repository.EventRepository
	sanitizer   security.ContentSanitizerService
	dataTimeout time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	mirror []model.Event
	loaded bool
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(repo repository.EventRepository, sanitizer security.ContentSanitizerService, dataTimeout time.Duration, logger *slog.Logger) *Store {
	if dataTimeout <= 0 {
		dataTimeout = 5 * time.Second
	}
	return &Store{
		repo:        repo,
		sanitizer:   sanitizer,
		dataTimeout: dataTimeout,
		logger:      logger,
	}
}

// Refresh は予定一覧を再取得してミラーを置き換える。
// 取得に失敗した場合はミラーに触れず、エラーだけを返す。
func (s *Store) Refresh(ctx context.Context) error {
	events, err := timeout.Do(ctx, s.dataTimeout, "event list",
		func(ctx context.Context) ([]model.Event, error) {
			return s.repo.ListOrderedByStartTime(ctx)
		})
	if err != nil {
		s.logger.Warn("event list refresh failed, keeping current mirror", "error", err)
		if model.IsTimeout(err) {
			return err
		}
		return model.NewDataError("event list", err)
	}

	s.mu.Lock()
	s.mirror = events
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Events は現在のミラーの複製を返す。
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.mirror))
	copy(out, s.mirror)
	return out
}

// Loaded は一覧取得が少なくとも一度成功したかを返す。
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Create は予定を検証・サニタイズした上で作成し、正準行をミラーに反映する。
// 検証に失敗した入力はバックエンドに送られない。
func (s *Store) Create(ctx context.Context, input *model.EventInput) (*model.Event, error) {
	s.sanitizer.SanitizeEventInput(input)
	if input.Color == "" {
		input.Color = model.DefaultEventColor
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	created, err := timeout.Do(ctx, s.dataTimeout, "event create",
		func(ctx context.Context) (*model.Event, error) {
			return s.repo.Create(ctx, input)
		})
	if err != nil {
		if model.IsTimeout(err) {
			return nil, err
		}
		return nil, model.NewDataError("event create", err)
	}

	s.mu.Lock()
	s.mirror = append(s.mirror, *created)
	s.sortLocked()
	s.mu.Unlock()
	return created, nil
}

// Update は部分更新を検証・サニタイズした上で適用し、正準行をミラーに反映する。
// 対象がバックエンドに存在しない場合はミラーからも取り除き、エラーを返す。
func (s *Store) Update(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error) {
	s.sanitizer.SanitizeEventPatch(patch)

	current := s.find(id)
	if current == nil {
		// ミラーに無い場合はバックエンドから現在値を引く
		found, err := timeout.Do(ctx, s.dataTimeout, "event lookup",
			func(ctx context.Context) (*model.Event, error) {
				return s.repo.FindByID(ctx, id)
			})
		if err != nil {
			if model.IsTimeout(err) {
				return nil, err
			}
			return nil, model.NewDataError("event lookup", err)
		}
		if found == nil {
			s.prune(id)
			return nil, model.NewDataError("event update", ErrEventGone)
		}
		current = found
	}
	if err := patch.Validate(current); err != nil {
		return nil, err
	}

	updated, err := timeout.Do(ctx, s.dataTimeout, "event update",
		func(ctx context.Context) (*model.Event, error) {
			return s.repo.Update(ctx, id, patch)
		})
	if err != nil {
		if model.IsTimeout(err) {
			return nil, err
		}
		return nil, model.NewDataError("event update", err)
	}
	if updated == nil {
		s.prune(id)
		return nil, model.NewDataError("event update", ErrEventGone)
	}

	s.mu.Lock()
	s.replaceLocked(*updated)
	s.sortLocked()
	s.mu.Unlock()
	return updated, nil
}

// Delete は予定を削除し、ミラーから該当IDを取り除く。
// バックエンド側で既に消えていても成功として扱う。
func (s *Store) Delete(ctx context.Context, id string) error {
	err := timeout.DoErr(ctx, s.dataTimeout, "event delete",
		func(ctx context.Context) error {
			return s.repo.Delete(ctx, id)
		})
	if err != nil {
		if model.IsTimeout(err) {
			return err
		}
		return model.NewDataError("event delete", err)
	}

	s.prune(id)
	return nil
}

// Find はミラーから該当IDの予定の複製を返す。無ければnil。
func (s *Store) Find(id string) *model.Event {
	return s.find(id)
}

// ApplySchedule はミラー上の該当予定の時刻だけを書き換える。
// バックエンドには何も送らない手元だけの変更で、楽観的な移動・伸縮の
// 即時反映に使う。該当IDが無い場合は偽を返す。
func (s *Store) ApplySchedule(id string, start, end time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mirror {
		if s.mirror[i].ID == id {
			s.mirror[i].StartTime = start
			s.mirror[i].EndTime = end
			s.sortLocked()
			return true
		}
	}
	return false
}

// find はミラーから該当IDの予定を探す。
func (s *Store) find(id string) *model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.mirror {
		if s.mirror[i].ID == id {
			ev := s.mirror[i]
			return &ev
		}
	}
	return nil
}

func (s *Store) prune(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mirror {
		if s.mirror[i].ID == id {
			s.mirror = append(s.mirror[:i], s.mirror[i+1:]...)
			return
		}
	}
}

func (s *Store) replaceLocked(ev model.Event) {
	for i := range s.mirror {
		if s.mirror[i].ID == ev.ID {
			s.mirror[i] = ev
			return
		}
	}
	s.mirror = append(s.mirror, ev)
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.mirror, func(i, j int) bool {
		return s.mirror[i].StartTime.Before(s.mirror[j].StartTime)
	})
}
