package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/familycal/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, role, auth_ref, created_at, updated_at`

// scanUser は1行をmodel.Userに写す。
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var authRef sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &authRef, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if authRef.Valid {
		user.AuthRef = &authRef.String
	}
	return user, nil
}

// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// ListOrderedByName は全ユーザーを名前昇順で取得する。
func (r *PostgresUserRepo) ListOrderedByName(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// UpdateAuthRef は認証プロバイダーへの後方参照を設定する。
func (r *PostgresUserRepo) UpdateAuthRef(ctx context.Context, email, authRef string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET auth_ref = $1, updated_at = now() WHERE email = $2`,
		authRef, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update auth_ref: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", email)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
