package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/familycal/internal/metrics"
	"github.com/hitoshi/familycal/internal/realtime"
)

// StreamHandler はイベント変更通知をServer-Sent Eventsとして配信する。
type StreamHandler struct {
	stream  *realtime.Stream
	metrics metrics.MetricsCollector
}

// NewStreamHandler はStreamHandlerを生成する。
func NewStreamHandler(stream *realtime.Stream, collector metrics.MetricsCollector) *StreamHandler {
	return &StreamHandler{stream: stream, metrics: collector}
}

// Subscribe はSSE接続を確立し、切断されるまで変更通知を流し続ける。
// GET /api/events/stream
//
// クライアントは受信した通知をきっかけにイベント一覧を再取得する。
// op=resyncはデータベース接続の再確立を意味し、全件再取得が必要。
func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// 接続確立をクライアントに知らせるコメント行
	w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ch := h.stream.Subscribe(r.Context())
	h.metrics.RecordStreamSubscribers(h.stream.SubscriberCount())
	defer func() {
		h.metrics.RecordStreamSubscribers(h.stream.SubscriberCount())
	}()

	for change := range ch {
		payload, err := json.Marshal(change)
		if err != nil {
			continue
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
