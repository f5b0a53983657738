// Package repository はデータ永続化のインターフェースを定義する。
// バックエンドの行CRUD契約（等値フィルタと並び順付き）をそのまま表現し、
// 型の無い行はこの境界でmodelの強い型に写す。
package repository

import (
	"context"

	"github.com/hitoshi/familycal/internal/model"
)

// UserRepository はプロフィール行の永続化インターフェース。
// 行の登録はアプリケーション外で行うため、作成操作は持たない。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ListOrderedByName は全ユーザーを名前昇順で取得する。
	ListOrderedByName(ctx context.Context) ([]model.User, error)

	// UpdateAuthRef は認証プロバイダーへの後方参照を設定する。
	// 初回セッション解決時のself-healing補修に使う。
	UpdateAuthRef(ctx context.Context, email, authRef string) error
}

// EventRepository はイベント行の永続化インターフェース。
type EventRepository interface {
	// ListOrderedByStartTime は全イベントをstart_time昇順で取得する。
	ListOrderedByStartTime(ctx context.Context) ([]model.Event, error)

	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// Create はイベントを挿入し、生成されたID・タイムスタンプを含む正準行を返す。
	Create(ctx context.Context, input *model.EventInput) (*model.Event, error)

	// Update は部分更新を適用し、更新後の正準行を返す。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error)

	// Delete は指定IDのイベントを削除する。対象が存在しなくてもエラーにしない。
	Delete(ctx context.Context, id string) error
}
