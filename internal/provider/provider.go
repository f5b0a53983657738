// Package provider は外部認証プロバイダー（GoTrue互換API）との連携を提供する。
// プロバイダーはワンタイムリンクの発行、コード・トークンのセッション交換、
// トークンのサーバー側再検証、サインアウトを公開する不透明な協力者として扱う。
package provider

import (
	"context"

	"github.com/hitoshi/familycal/internal/model"
)

// Identity はプロバイダーが検証したユーザー識別情報を表す。
type Identity struct {
	UserID string // プロバイダー側のユーザーID
	Email  string
}

// OneTimeLinkOptions はワンタイムリンク発行のオプション。
type OneTimeLinkOptions struct {
	RedirectTo    string // リンククリック後のコールバックURL
	AllowNewUsers bool   // 未登録メールアドレスでのアカウント作成を許可するか
}

// AuthClient は認証プロバイダーのインターフェース。
// 実装はHTTP経由のGoTrueクライアント。テストではモックに差し替える。
type AuthClient interface {
	// SignInWithOneTimeLink はワンタイムログインリンクをメール送信する。
	SignInWithOneTimeLink(ctx context.Context, email string, opts OneTimeLinkOptions) error
	// ExchangeCodeForSession は認可コードをセッションに交換する（PKCEフロー）。
	ExchangeCodeForSession(ctx context.Context, code string) (*model.ProviderSession, error)
	// VerifyOneTimeToken はtoken_hash形式のワンタイムトークンを直接検証する（旧フロー）。
	VerifyOneTimeToken(ctx context.Context, tokenHash, tokenType string) (*model.ProviderSession, error)
	// GetValidatedUser はアクセストークンをプロバイダー権威でサーバー側再検証する。
	// ローカルのみの読み取りではなく、必ずラウンドトリップを行う。
	GetValidatedUser(ctx context.Context, accessToken string) (*Identity, error)
	// SignOut はプロバイダー側のセッションを失効させる。
	SignOut(ctx context.Context, accessToken string) error
}

// AuthChangeKind はプロバイダーからプッシュされる認証状態変化の種別。
type AuthChangeKind string

const (
	// AuthChangeSignedIn はサインイン（例: 別タブでのリンク交換完了）。
	AuthChangeSignedIn AuthChangeKind = "SIGNED_IN"
	// AuthChangeSignedOut はサインアウト。
	AuthChangeSignedOut AuthChangeKind = "SIGNED_OUT"
)

// AuthChangeEvent は認証状態変化イベント。
// プッシュイベントのセッションはプロバイダー側で検証済みとして扱う。
type AuthChangeEvent struct {
	Kind    AuthChangeKind
	Session *model.ProviderSession // SignedOut時はnil
}
