package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/familycal/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, title, description, start_time, end_time, user_id, color, link, place, cost_per_person, created_at, updated_at`

// scanEvent は1行をmodel.Eventに写す。
func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	ev := &model.Event{}
	var cost sql.NullFloat64
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&ev.UserID, &ev.Color, &ev.Link, &ev.Place, &cost,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cost.Valid {
		ev.CostPerPerson = &cost.Float64
	}
	return ev, nil
}

// ListOrderedByStartTime は全イベントをstart_time昇順で取得する。
func (r *PostgresEventRepo) ListOrderedByStartTime(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY start_time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by ID: %w", err)
	}
	return ev, nil
}

// Create はイベントを挿入し、生成されたID・タイムスタンプを含む正準行を返す。
// 生成フィールドの正はバックエンドであり、入力値をそのまま返すことはしない。
func (r *PostgresEventRepo) Create(ctx context.Context, input *model.EventInput) (*model.Event, error) {
	var cost sql.NullFloat64
	if input.CostPerPerson != nil {
		cost = sql.NullFloat64{Float64: *input.CostPerPerson, Valid: true}
	}

	ev, err := scanEvent(r.db.QueryRowContext(ctx,
		`INSERT INTO events (title, description, start_time, end_time, user_id, color, link, place, cost_per_person)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+eventColumns,
		input.Title, input.Description, input.StartTime, input.EndTime,
		input.UserID, input.Color, input.Link, input.Place, cost,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return ev, nil
}

// Update は部分更新を適用し、更新後の正準行を返す。対象が存在しない場合はnilを返す。
func (r *PostgresEventRepo) Update(ctx context.Context, id string, patch *model.EventPatch) (*model.Event, error) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.Color != nil {
		add("color", *patch.Color)
	}
	if patch.Link != nil {
		add("link", *patch.Link)
	}
	if patch.Place != nil {
		add("place", *patch.Place)
	}
	if patch.CostPerPerson != nil {
		add("cost_per_person", *patch.CostPerPerson)
	}

	if len(sets) == 0 {
		// 変更フィールドが無い場合は現在行を返す
		return r.FindByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE events SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), eventColumns,
	)

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return ev, nil
}

// Delete は指定IDのイベントを削除する。
// 対象が存在しない場合もエラーにしない（リモート側で既に消えているのは正常系）。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
