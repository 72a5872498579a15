package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/store"
)

func (d *DB) CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error) {
	stmt := `INSERT INTO schedule (id, owner, row_status, created_ts, date, time, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.Owner, create.RowStatus, create.CreatedTs,
		create.Date, create.Time, create.Content,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create schedule")
	}
	return create, nil
}

func (d *DB) ListSchedules(ctx context.Context, find *store.FindSchedule) ([]*store.Schedule, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Owner; v != nil {
		where, args = append(where, "owner = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.RowStatus; v != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DateFrom; v != nil {
		where, args = append(where, "date >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DateTo; v != nil {
		where, args = append(where, "date <= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ContentContains; v != nil {
		where, args = append(where, "strpos(content, "+placeholder(len(args)+1)+") > 0"), append(args, *v)
	}

	// COLLATE "C" keeps the byte order the other drivers use.
	query := `SELECT id, owner, row_status, created_ts, date, time, content
		FROM schedule
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date COLLATE "C" ASC, time COLLATE "C" ASC, created_ts ASC, id COLLATE "C" ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schedules")
	}
	defer rows.Close()

	list := make([]*store.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		list = append(list, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate schedules")
	}
	return list, nil
}

func (d *DB) DeleteSchedule(ctx context.Context, delete *store.DeleteSchedule) (*store.Schedule, error) {
	stmt := `UPDATE schedule SET row_status = $1
		WHERE id = $2 AND owner = $3 AND row_status = $4
		RETURNING id, owner, row_status, created_ts, date, time, content`
	schedule, err := scanSchedule(d.db.QueryRowContext(ctx, stmt, store.Deleted, delete.ID, delete.Owner, store.Active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete schedule")
	}
	return schedule, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*store.Schedule, error) {
	var schedule store.Schedule
	if err := row.Scan(
		&schedule.ID,
		&schedule.Owner,
		&schedule.RowStatus,
		&schedule.CreatedTs,
		&schedule.Date,
		&schedule.Time,
		&schedule.Content,
	); err != nil {
		return nil, err
	}
	return &schedule, nil
}
