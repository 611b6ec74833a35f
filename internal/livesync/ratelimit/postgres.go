package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresLog implementa Log sobre a tabela append-only api_call_log
type PostgresLog struct{ db *sql.DB }

func NewPostgresLog(db *sql.DB) *PostgresLog { return &PostgresLog{db: db} }

func (p *PostgresLog) CountInWindow(ctx context.Context, service string, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM api_call_log
		WHERE service=$1 AND success AND NOT from_cache AND called_at >= $2`,
		service, since).Scan(&n)
	return n, err
}

func (p *PostgresLog) OldestInWindow(ctx context.Context, service string, since time.Time) (time.Time, bool, error) {
	var ts time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT called_at FROM api_call_log
		WHERE service=$1 AND success AND NOT from_cache AND called_at >= $2
		ORDER BY called_at LIMIT 1`,
		service, since).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func (p *PostgresLog) Append(ctx context.Context, service string, e Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_call_log (service, endpoint, success, from_cache, called_at)
		VALUES ($1,$2,$3,$4,$5)`,
		service, e.Endpoint, e.Success, e.FromCache, e.CalledAt)
	return err
}

func (p *PostgresLog) PruneBefore(ctx context.Context, service string, cutoff time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM api_call_log WHERE service=$1 AND called_at < $2`,
		service, cutoff)
	return err
}

func (p *PostgresLog) Tail(ctx context.Context, service string, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT endpoint, success, from_cache, called_at
		FROM api_call_log
		WHERE service=$1
		ORDER BY called_at DESC
		LIMIT $2`, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Endpoint, &e.Success, &e.FromCache, &e.CalledAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
