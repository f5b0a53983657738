// Package auth はマジックリンク認証フローを提供する。
package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/provider"
	"github.com/hitoshi/familycal/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// AllowNewUsers が偽の場合、未登録メールへのリンク発行を拒否する。
	// 家族向けアプリのため既定では新規登録を受け付けない。
	AllowNewUsers bool
}

// Service はマジックリンク認証のビジネスロジックを提供する。
// パスワードは一切扱わず、ログインはメールで届くワンタイムリンクのみ。
type Service struct {
	auth     provider.AuthClient
	userRepo repository.UserRepository
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(auth provider.AuthClient, userRepo repository.UserRepository, config ServiceConfig) *Service {
	return &Service{
		auth:     auth,
		userRepo: userRepo,
		config:   config,
	}
}

// IssueLink は指定メールアドレスへワンタイムリンクを発行する。
// redirectTo はリンク踏破後に戻るコールバックURL。
// 新規登録を許可しない設定では、既知のメンバーかどうかを先に確認する。
func (s *Service) IssueLink(ctx context.Context, email, redirectTo string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return model.NewValidationError("email is required")
	}

	if !s.config.AllowNewUsers {
		user, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return model.NewDataError("member lookup", err)
		}
		if user == nil {
			return model.NewUserNotFoundError(email)
		}
	}

	requestID := uuid.New().String()
	if err := s.auth.SignInWithOneTimeLink(ctx, email, provider.OneTimeLinkOptions{
		RedirectTo:    redirectTo,
		AllowNewUsers: s.config.AllowNewUsers,
	}); err != nil {
		slog.Warn("magic link issuance failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return err
	}

	slog.Info("magic link issued",
		slog.String("request_id", requestID),
		slog.String("email", email),
	)
	return nil
}

// ExchangeCode はPKCE認可コードをセッションに交換する。
func (s *Service) ExchangeCode(ctx context.Context, code string) (*model.ProviderSession, error) {
	if code == "" {
		return nil, model.NewValidationError("code is required")
	}
	sess, err := s.auth.ExchangeCodeForSession(ctx, code)
	if err != nil {
		return nil, err
	}
	slog.Info("authorization code exchanged", slog.String("email", sess.Email))
	return sess, nil
}

// VerifyToken はリンク内のトークンハッシュを検証してセッションを確立する。
func (s *Service) VerifyToken(ctx context.Context, tokenHash, tokenType string) (*model.ProviderSession, error) {
	if tokenHash == "" || tokenType == "" {
		return nil, model.NewValidationError("token_hash and type are required")
	}
	sess, err := s.auth.VerifyOneTimeToken(ctx, tokenHash, tokenType)
	if err != nil {
		return nil, err
	}
	slog.Info("one-time token verified", slog.String("email", sess.Email))
	return sess, nil
}

// SignOut はプロバイダー側のセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return s.auth.SignOut(ctx, accessToken)
}
