package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: timeout, auth, exchange, data, validation, system
	Action   string // ユーザー向け対処方法
	cause    error  // ラップした原因エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はラップされた原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeAuthInvalid     = "AUTH_INVALID"
	ErrCodeExchangeFailed  = "EXCHANGE_FAILED"
	ErrCodeDataRejected    = "DATA_REJECTED"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeMagicLinkFailed = "MAGIC_LINK_FAILED"
)

// ErrTimeout はタイムアウト判定用のセンチネルエラー。
// errors.Is(err, ErrTimeout) でタイムアウト系APIErrorを判別できる。
var ErrTimeout = errors.New("request timeout")

// NewTimeoutError はバックエンド無応答によるタイムアウトエラーを生成する。
func NewTimeoutError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  fmt.Sprintf("バックエンドが時間内に応答しませんでした: %s", operation),
		Category: "timeout",
		Action:   "通信環境を確認し、再度お試しください。",
		cause:    ErrTimeout,
	}
}

// NewAuthError は無効・期限切れトークンによる認証エラーを生成する。
func NewAuthError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAuthInvalid,
		Message:  "認証情報が無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
		cause:    cause,
	}
}

// NewExchangeError はコード・トークン交換がバックエンドに拒否された場合のエラーを生成する。
func NewExchangeError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeExchangeFailed,
		Message:  "ログインリンクの検証に失敗しました。",
		Category: "exchange",
		Action:   "リンクの有効期限が切れている可能性があります。もう一度ログインリンクを送信してください。",
		cause:    cause,
	}
}

// NewDataError は行CRUDがバックエンドに拒否された場合のエラーを生成する。
func NewDataError(operation string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeDataRejected,
		Message:  fmt.Sprintf("データ操作に失敗しました: %s", operation),
		Category: "data",
		Action:   "しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewValidationError はクライアント側スキーマ検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はプロフィール行が見つからない場合のエラーを生成する。
func NewUserNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("登録されていないメールアドレスです: %s", email),
		Category: "auth",
		Action:   "家族の管理者にメンバー登録を依頼してください。",
	}
}

// NewMagicLinkError はログインリンク送信失敗エラーを生成する。
// バックエンドの生のエラーメッセージを呼び出し元へ表示する。
func NewMagicLinkError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeMagicLinkFailed,
		Message:  fmt.Sprintf("ログインリンクの送信に失敗しました: %v", cause),
		Category: "auth",
		Action:   "メールアドレスを確認し、再度お試しください。",
		cause:    cause,
	}
}

// IsTimeout はエラーがタイムアウト起因かを判定する。
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
