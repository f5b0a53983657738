// Package timeout はバックエンド呼び出しをデッドライン付きでラップするコンビネータを提供する。
// ハングをタイムアウトの型付きエラーに変換し、UIが無期限に待たされることを防ぐ。
package timeout

import (
	"context"
	"time"

	"github.com/hitoshi/familycal/internal/model"
)

// Do はfnをタイマーと競争させ、タイマーが先に発火した場合は
// model.NewTimeoutErrorで失敗を返す。
// タイムアウト後にfnが返した結果は破棄される（キャンセルはしない。
// 結果はバッファ付きチャネルに吸収されるためゴルーチンはブロックしない）。
// 所要時間は呼び出しサイトごとに選ぶ: セッション確認は短く、データ取得は長く。
func Do[T any](ctx context.Context, d time.Duration, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	ch := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		ch <- result{val: val, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case res := <-ch:
		return res.val, res.err
	case <-timer.C:
		return zero, model.NewTimeoutError(operation)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// DoErr は値を返さない操作用のDo。
func DoErr(ctx context.Context, d time.Duration, operation string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, d, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
