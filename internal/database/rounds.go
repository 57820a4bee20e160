package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RoundArchive durably records finished rounds. The bounded redis history is
// the fast path clients read; this table is the permanent record.
type RoundArchive struct {
	db *sql.DB
}

type ArchivedRound struct {
	ID         string
	CrashPoint float64
	Seed       string
	Commitment string
	CreatedAt  time.Time
}

func NewRoundArchive(db *sql.DB) *RoundArchive {
	return &RoundArchive{db: db}
}

func (a *RoundArchive) SaveRound(ctx context.Context, id string, crashPoint float64, seed, commitment string) error {
	const q = `
		INSERT INTO round_history (id, crash_point, seed, commitment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := a.db.ExecContext(ctx, q, id, crashPoint, seed, commitment); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// Recent returns the newest archived rounds, most recent first.
func (a *RoundArchive) Recent(ctx context.Context, limit int) ([]ArchivedRound, error) {
	const q = `
		SELECT id, crash_point, seed, commitment, created_at
		FROM round_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := a.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []ArchivedRound
	for rows.Next() {
		var r ArchivedRound
		if err := rows.Scan(&r.ID, &r.CrashPoint, &r.Seed, &r.Commitment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}
