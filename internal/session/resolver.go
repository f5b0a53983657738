// Package session はセッション状態の解決と購読を提供する。
//
// 状態は「未確定」「未認証」「認証済み」の三値で表す。
// 画面側は未確定の間だけ読み込み表示を出し、確定後はこのパッケージが
// 通知する遷移に追従する。どのような失敗経路でも最終的に
// 未認証か認証済みのどちらかに収束する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/provider"
	"github.com/hitoshi/familycal/internal/timeout"
)

// State はセッション状態。
type State int

const (
	// StateUnknown は初期解決が終わっていない状態。
	StateUnknown State = iota
	// StateAnonymous は有効なセッションが無い状態。
	StateAnonymous
	// StateAuthenticated は検証済みセッションとプロフィールが揃った状態。
	StateAuthenticated
)

// String はStateの文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot は解決済みのセッション状態のスナップショット。
type Snapshot struct {
	State   State
	Session *model.ProviderSession
	Profile *model.User
}

// CredentialSource は保存済みセッション資格情報の読み書きを抽象化する。
type CredentialSource interface {
	// Load は保存済みセッションを返す。保存が無い場合は(nil, nil)。
	Load(ctx context.Context) (*model.ProviderSession, error)
	// Store はセッションを保存する。
	Store(ctx context.Context, sess *model.ProviderSession) error
	// Clear は保存済みセッションを破棄する。
	Clear(ctx context.Context) error
}

// ProfileService はプロフィール取得と認証参照の修復を抽象化する。
type ProfileService interface {
	FindProfileByEmail(ctx context.Context, email string) (*model.User, error)
	EnsureAuthRef(ctx context.Context, user *model.User, authRef string)
}

// Config はResolverのタイムアウト設定。
type Config struct {
	// SessionCheckTimeout は保存済みセッションの検証に許す時間。
	SessionCheckTimeout time.Duration
	// DataTimeout はプロフィール取得に許す時間。
	DataTimeout time.Duration
}

// Resolver はセッション状態を解決し、遷移を購読者へ通知する。
type Resolver struct {
	creds    CredentialSource
	auth     provider.AuthClient
	profiles ProfileService
	cfg      Config
	logger   *slog.Logger

	mu        sync.Mutex
	snapshot  Snapshot
	resolved  bool
	listeners []func(Snapshot)
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(creds CredentialSource, auth provider.AuthClient, profiles ProfileService, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.SessionCheckTimeout <= 0 {
		cfg.SessionCheckTimeout = 800 * time.Millisecond
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = 5 * time.Second
	}
	return &Resolver{
		creds:    creds,
		auth:     auth,
		profiles: profiles,
		cfg:      cfg,
		logger:   logger,
		snapshot: Snapshot{State: StateUnknown},
	}
}

// Resolve は保存済み資格情報からセッション状態を確定する。
//
// 手順:
//  1. 保存済みセッションを読み込む。無ければ未認証。
//  2. セッション検証タイムアウト内でプロバイダーにトークンを検証させる。
//  3. 検証に失敗した場合は資格情報を破棄し、プロバイダー側もサインアウトして未認証。
//  4. 検証に成功したらデータタイムアウト内でプロフィールを取得する。
//  5. 認証参照の紐付けが欠けていれば修復する（失敗しても続行）。
//
// どの失敗も未認証への収束であり、エラーとしては返さない。
// 返り値のエラーは文脈キャンセルなど解決自体を中断した場合のみ。
func (r *Resolver) Resolve(ctx context.Context) (Snapshot, error) {
	sess, err := r.creds.Load(ctx)
	if err != nil {
		r.logger.Warn("failed to load stored credentials", "error", err)
		return r.settle(Snapshot{State: StateAnonymous}), nil
	}
	if sess == nil {
		return r.settle(Snapshot{State: StateAnonymous}), nil
	}

	ident, err := timeout.Do(ctx, r.cfg.SessionCheckTimeout, "session check",
		func(ctx context.Context) (*provider.Identity, error) {
			return r.auth.GetValidatedUser(ctx, sess.AccessToken)
		})
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{State: StateUnknown}, ctx.Err()
		}
		r.logger.Info("stored session rejected, signing out",
			"timeout", model.IsTimeout(err),
			"error", err,
		)
		r.purge(ctx, sess)
		return r.settle(Snapshot{State: StateAnonymous}), nil
	}

	sess.UserID = ident.UserID
	sess.Email = ident.Email
	return r.completeSignIn(ctx, sess), nil
}

// HandleAuthChange はプロバイダーからの認証状態遷移を反映する。
// サインイン遷移はトークン検証を繰り返さず、プロフィール取得以降のみ行う。
func (r *Resolver) HandleAuthChange(ctx context.Context, evt provider.AuthChangeEvent) Snapshot {
	switch evt.Kind {
	case provider.AuthChangeSignedIn:
		if evt.Session == nil {
			return r.settle(Snapshot{State: StateAnonymous})
		}
		if err := r.creds.Store(ctx, evt.Session); err != nil {
			r.logger.Warn("failed to store session credentials", "error", err)
		}
		return r.completeSignIn(ctx, evt.Session)
	default:
		if err := r.creds.Clear(ctx); err != nil {
			r.logger.Warn("failed to clear credentials", "error", err)
		}
		return r.settle(Snapshot{State: StateAnonymous})
	}
}

// SignOut は明示的なサインアウトを実行する。
func (r *Resolver) SignOut(ctx context.Context) Snapshot {
	r.mu.Lock()
	sess := r.snapshot.Session
	r.mu.Unlock()

	r.purge(ctx, sess)
	return r.settle(Snapshot{State: StateAnonymous})
}

// AttachListener は状態遷移の購読者を登録する。
// 初期解決が終わる前の登録は受け付けない。解決前の遷移は存在せず、
// 購読者は必ず確定済みスナップショットから追従を始める。
func (r *Resolver) AttachListener(fn func(Snapshot)) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolved {
		return r.snapshot, false
	}
	r.listeners = append(r.listeners, fn)
	return r.snapshot, true
}

// Current は現在のスナップショットを返す。
func (r *Resolver) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// completeSignIn は検証済みセッションからプロフィールを取得して認証済みへ遷移する。
// プロフィール取得の失敗は未認証への収束として扱う。
func (r *Resolver) completeSignIn(ctx context.Context, sess *model.ProviderSession) Snapshot {
	profile, err := timeout.Do(ctx, r.cfg.DataTimeout, "profile fetch",
		func(ctx context.Context) (*model.User, error) {
			return r.profiles.FindProfileByEmail(ctx, sess.Email)
		})
	if err != nil {
		r.logger.Warn("failed to fetch profile, treating session as anonymous",
			"email", sess.Email,
			"error", err,
		)
		r.purge(ctx, sess)
		return r.settle(Snapshot{State: StateAnonymous})
	}

	r.profiles.EnsureAuthRef(ctx, profile, sess.UserID)

	return r.settle(Snapshot{
		State:   StateAuthenticated,
		Session: sess,
		Profile: profile,
	})
}

// purge は保存済み資格情報を破棄し、プロバイダー側のセッションも無効化する。
// プロバイダー側の失敗はローカル破棄を妨げない。
func (r *Resolver) purge(ctx context.Context, sess *model.ProviderSession) {
	if err := r.creds.Clear(ctx); err != nil {
		r.logger.Warn("failed to clear credentials", "error", err)
	}
	if sess == nil || sess.AccessToken == "" {
		return
	}
	if err := r.auth.SignOut(ctx, sess.AccessToken); err != nil {
		r.logger.Warn("provider sign-out failed", "error", err)
	}
}

// settle はスナップショットを確定し、購読者へ通知する。
func (r *Resolver) settle(snap Snapshot) Snapshot {
	r.mu.Lock()
	r.snapshot = snap
	r.resolved = true
	listeners := make([]func(Snapshot), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}
