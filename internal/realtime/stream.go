package realtime

import (
	"context"
	"sync"
	"time"
)

// ChangeEvent はイベントテーブルの変更通知。
// 購読側はこれを再取得のトリガーとして扱い、ペイロード自体を正として使わない。
type ChangeEvent struct {
	Op        string    `json:"op"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream は変更通知を全購読者にファンアウトする。
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan ChangeEvent
	next int
}

// NewStream は空のStreamを生成する。
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe は購読者を登録し、通知を受け取るチャネルを返す。
// 渡されたコンテキストが終了するとチャネルはクローズされる。
func (s *Stream) Subscribe(ctx context.Context) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish は通知を全購読者に配る。受信が詰まっている購読者へは破棄する。
func (s *Stream) Publish(evt ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount は現在の購読者数を返す。
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
