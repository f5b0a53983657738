package model

import "time"

// ProviderSession は外部認証プロバイダーが発行したセッションを表す。
// アプリケーション自身はセッションを永続化しない。
// トークンはHTTP Only Cookieに保存され、プロバイダーのリフレッシュ機構に委ねる。
type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string // プロバイダー側のユーザーID
	Email        string
}

// Expired はセッションのアクセストークンが期限切れかを返す。
// ExpiresAtが不明（ゼロ値）の場合は期限内として扱い、サーバー側再検証に委ねる。
func (s *ProviderSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
