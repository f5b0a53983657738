package optimistic

import "errors"

// ErrUnknownEvent は対象の予定が手元ミラーに存在しないことを示す。
var ErrUnknownEvent = errors.New("event not present in the local mirror")
