// Package user は家族メンバー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/repository"
)

// Service は家族メンバー管理のサービス層。
// 認証プロバイダーの識別子とアプリ側のユーザー行の突き合わせを担う。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// FindProfileByEmail はメールアドレスでメンバーのプロフィールを取得する。
// 見つからない場合はUSER_NOT_FOUNDエラーを返す。
func (s *Service) FindProfileByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewDataError("profile lookup", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(email)
	}
	return user, nil
}

// ListMembers は全メンバーを名前順で取得する。ログイン画面の選択肢に使用する。
func (s *Service) ListMembers(ctx context.Context) ([]model.User, error) {
	users, err := s.userRepo.ListOrderedByName(ctx)
	if err != nil {
		return nil, model.NewDataError("member list", err)
	}
	return users, nil
}

// EnsureAuthRef はメンバー行と認証プロバイダーの識別子の紐付けを保証する。
// 紐付けが欠けている行を見つけたときに遅延修復する。
// 修復の失敗はログインを妨げるほどのものではないためログに残すだけにする。
func (s *Service) EnsureAuthRef(ctx context.Context, user *model.User, authRef string) {
	if user == nil || authRef == "" {
		return
	}
	if user.HasAuthRef() && *user.AuthRef == authRef {
		return
	}

	if err := s.userRepo.UpdateAuthRef(ctx, user.Email, authRef); err != nil {
		slog.Warn("failed to repair auth reference",
			slog.String("email", user.Email),
			slog.String("error", fmt.Sprintf("%v", err)),
		)
		return
	}

	user.AuthRef = &authRef
	slog.Info("repaired auth reference",
		slog.String("email", user.Email),
	)
}
