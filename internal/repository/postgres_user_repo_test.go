package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newUserRepoMock(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresUserRepo(db), mock
}

func userRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows([]string{
		"id", "email", "name", "role", "auth_ref", "created_at", "updated_at",
	})
}

func TestPostgresUserRepo_FindByEmail(t *testing.T) {
	repo, mock := newUserRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("parent@example.com").
		WillReturnRows(userRows(t).AddRow(
			"u1", "parent@example.com", "Papa", "admin", "auth-1", now, now,
		))

	user, err := repo.FindByEmail(context.Background(), "parent@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Name != "Papa" {
		t.Errorf("Name = %q", user.Name)
	}
	if !user.HasAuthRef() || *user.AuthRef != "auth-1" {
		t.Errorf("AuthRef = %v", user.AuthRef)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresUserRepo_FindByEmail_NotFound_ReturnsNil(t *testing.T) {
	repo, mock := newUserRepoMock(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("stranger@example.com").
		WillReturnRows(userRows(t))

	user, err := repo.FindByEmail(context.Background(), "stranger@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByEmail_NullAuthRef(t *testing.T) {
	repo, mock := newUserRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("kid@example.com").
		WillReturnRows(userRows(t).AddRow(
			"u2", "kid@example.com", "Léa", "member", nil, now, now,
		))

	user, err := repo.FindByEmail(context.Background(), "kid@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.HasAuthRef() {
		t.Errorf("expected unlinked user, got AuthRef=%v", user.AuthRef)
	}
}

func TestPostgresUserRepo_ListOrderedByName(t *testing.T) {
	repo, mock := newUserRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY name ASC`).
		WillReturnRows(userRows(t).
			AddRow("u2", "kid@example.com", "Léa", "member", nil, now, now).
			AddRow("u1", "parent@example.com", "Papa", "admin", "auth-1", now, now),
		)

	users, err := repo.ListOrderedByName(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0].Name != "Léa" || users[1].Name != "Papa" {
		t.Errorf("order = %q, %q", users[0].Name, users[1].Name)
	}
}

func TestPostgresUserRepo_UpdateAuthRef(t *testing.T) {
	repo, mock := newUserRepoMock(t)

	mock.ExpectExec(`UPDATE users SET auth_ref = \$1`).
		WithArgs("auth-9", "parent@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateAuthRef(context.Background(), "parent@example.com", "auth-9"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresUserRepo_UpdateAuthRef_UnknownEmail_ReturnsError(t *testing.T) {
	repo, mock := newUserRepoMock(t)

	mock.ExpectExec(`UPDATE users SET auth_ref = \$1`).
		WithArgs("auth-9", "nobody@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateAuthRef(context.Background(), "nobody@example.com", "auth-9"); err == nil {
		t.Fatal("expected error for unmatched email, got nil")
	}
}
