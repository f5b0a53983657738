package eventstore

import "errors"

// ErrEventGone は更新対象の予定がバックエンドに存在しなかったことを示す。
var ErrEventGone = errors.New("event no longer exists")
