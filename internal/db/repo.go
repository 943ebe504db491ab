package db

import (
	"context"
	"database/sql"
	"time"

	"composewatch/internal/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertAlertEvent(ctx context.Context, e models.AlertEvent) (int64, error) {
	delivered := 0
	if e.Delivered {
		delivered = 1
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO alert_events
		(ts,project,container,status,error_count,elapsed_seconds,message,delivered,http_status,last_error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.TS.UTC(), e.Project, e.Container, e.Status.String(), e.ErrorCount, e.ElapsedSeconds, e.Message, delivered, e.HTTPStatus, e.Error)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentAlertEvents returns the newest events first. An empty container
// matches every container.
func (r *Repository) RecentAlertEvents(ctx context.Context, container string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id,ts,project,container,status,error_count,elapsed_seconds,message,delivered,http_status,last_error FROM alert_events`
	args := []any{}
	if container != "" {
		query += ` WHERE container = ?`
		args = append(args, container)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AlertEvent, 0, limit)
	for rows.Next() {
		var e models.AlertEvent
		var status string
		var delivered int
		if err := rows.Scan(&e.ID, &e.TS, &e.Project, &e.Container, &status, &e.ErrorCount, &e.ElapsedSeconds, &e.Message, &delivered, &e.HTTPStatus, &e.Error); err != nil {
			return nil, err
		}
		e.Status = models.ParseStatus(status)
		e.Delivered = delivered == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alert_events WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}
