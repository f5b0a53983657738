package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// notifyChannel はイベント変更トリガーが通知するPostgreSQLチャネル名。
const notifyChannel = "events_changed"

// Listener はPostgreSQLのLISTEN/NOTIFYを購読してStreamへ流し込む。
type Listener struct {
	dsn    string
	stream *Stream
	logger *slog.Logger
}

// NewListener はListenerを生成する。
func NewListener(dsn string, stream *Stream, logger *slog.Logger) *Listener {
	return &Listener{dsn: dsn, stream: stream, logger: logger}
}

// Run は通知の受信ループを開始し、コンテキスト終了までブロックする。
// 接続断はpq.Listenerが再接続するため、ここではログに残すだけにする。
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				l.logger.Warn("listener connection event", "event", int(ev), "error", err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(notifyChannel); err != nil {
		return err
	}
	l.logger.Info("listening for event changes", "channel", notifyChannel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			if n == nil {
				// 再接続直後はnilが届く。取りこぼした可能性があるので全件再取得を促す
				l.stream.Publish(ChangeEvent{Op: "resync", Timestamp: time.Now().UTC()})
				continue
			}
			l.stream.Publish(parseNotification(n.Extra))
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func parseNotification(payload string) ChangeEvent {
	var body struct {
		Op string `json:"op"`
		ID string `json:"id"`
	}
	// ペイロードが壊れていても通知自体は配る
	_ = json.Unmarshal([]byte(payload), &body)
	return ChangeEvent{Op: body.Op, EventID: body.ID, Timestamp: time.Now().UTC()}
}
