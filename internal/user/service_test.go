package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/familycal/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn       func(ctx context.Context, email string) (*model.User, error)
	listOrderedByNameFn func(ctx context.Context) ([]model.User, error)
	updateAuthRefFn     func(ctx context.Context, email, authRef string) error
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) ListOrderedByName(ctx context.Context) ([]model.User, error) {
	if m.listOrderedByNameFn != nil {
		return m.listOrderedByNameFn(ctx)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateAuthRef(ctx context.Context, email, authRef string) error {
	if m.updateAuthRefFn != nil {
		return m.updateAuthRefFn(ctx, email, authRef)
	}
	return nil
}

// --- テスト ---

// TestService_FindProfileByEmail はメールアドレスによるプロフィール取得を検証する。
func TestService_FindProfileByEmail(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "u1", Email: email, Name: "Papa"}, nil
		},
	})

	user, err := svc.FindProfileByEmail(context.Background(), "parent@example.com")
	if err != nil {
		t.Fatalf("FindProfileByEmail returned error: %v", err)
	}
	if user.Name != "Papa" {
		t.Errorf("Name = %q", user.Name)
	}
}

// TestService_FindProfileByEmail_NotFound は未登録メールがUSER_NOT_FOUNDになることを検証する。
func TestService_FindProfileByEmail_NotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{})

	_, err := svc.FindProfileByEmail(context.Background(), "stranger@example.com")
	if err == nil {
		t.Fatal("expected error for unknown email, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

// TestService_ListMembers は名前順のメンバー一覧取得を検証する。
func TestService_ListMembers(t *testing.T) {
	svc := NewService(&mockUserRepo{
		listOrderedByNameFn: func(ctx context.Context) ([]model.User, error) {
			return []model.User{{Name: "Léa"}, {Name: "Papa"}}, nil
		},
	})

	users, err := svc.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("ListMembers returned error: %v", err)
	}
	if len(users) != 2 || users[0].Name != "Léa" {
		t.Errorf("users = %+v", users)
	}
}

// TestService_EnsureAuthRef_RepairsMissingLink は欠けた紐付けが修復されることを検証する。
func TestService_EnsureAuthRef_RepairsMissingLink(t *testing.T) {
	var gotEmail, gotRef string
	svc := NewService(&mockUserRepo{
		updateAuthRefFn: func(ctx context.Context, email, authRef string) error {
			gotEmail, gotRef = email, authRef
			return nil
		},
	})

	u := &model.User{Email: "parent@example.com"}
	svc.EnsureAuthRef(context.Background(), u, "auth-1")

	if gotEmail != "parent@example.com" || gotRef != "auth-1" {
		t.Errorf("update called with (%q, %q)", gotEmail, gotRef)
	}
	if !u.HasAuthRef() || *u.AuthRef != "auth-1" {
		t.Errorf("AuthRef not set on the profile: %v", u.AuthRef)
	}
}

// TestService_EnsureAuthRef_SkipsWhenAlreadyLinked は紐付け済みの行を更新しないことを検証する。
func TestService_EnsureAuthRef_SkipsWhenAlreadyLinked(t *testing.T) {
	called := false
	svc := NewService(&mockUserRepo{
		updateAuthRefFn: func(ctx context.Context, email, authRef string) error {
			called = true
			return nil
		},
	})

	ref := "auth-1"
	svc.EnsureAuthRef(context.Background(), &model.User{Email: "parent@example.com", AuthRef: &ref}, "auth-1")

	if called {
		t.Error("already linked profile should not be updated")
	}
}

// TestService_EnsureAuthRef_FailureIsNonFatal は修復失敗が呼び出し元に伝播しないことを検証する。
func TestService_EnsureAuthRef_FailureIsNonFatal(t *testing.T) {
	svc := NewService(&mockUserRepo{
		updateAuthRefFn: func(ctx context.Context, email, authRef string) error {
			return errors.New("db down")
		},
	})

	u := &model.User{Email: "parent@example.com"}
	svc.EnsureAuthRef(context.Background(), u, "auth-1")

	if u.HasAuthRef() {
		t.Error("failed repair should leave the profile unlinked")
	}
}
