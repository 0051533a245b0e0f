package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/ledger"
)

// LedgerRepository stores attendance marks in the attendance_marks table.
// The unique (session_key, member_key) constraint makes marking idempotent.
type LedgerRepository struct {
	pool *Pool
}

// NewLedgerRepository creates a new PostgreSQL attendance ledger.
func NewLedgerRepository(pool *Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// MarkPresent inserts the mark unless the member already has one in the session.
func (r *LedgerRepository) MarkPresent(ctx context.Context, key ledger.SessionKey, m ledger.Mark) (ledger.MarkResult, error) {
	query := `
		INSERT INTO attendance_marks (
			session_key, session_date, department, year, division, time_slot,
			member_key, roll_no, name, confidence, outcome, marked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_key, member_key) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		key.Encode(), key.Date, key.Department, key.Year, key.Division, key.TimeSlot,
		m.Key(), m.RollNo, m.Name, m.Confidence, m.Outcome, m.At,
	)
	if err != nil {
		return 0, fmt.Errorf("insert attendance mark: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert attendance mark: %w", err)
	}
	if n == 0 {
		return ledger.AlreadyMarked, nil
	}
	return ledger.Marked, nil
}

// IsMarked reports whether member (see ledger.MemberKey) has a mark in the session.
func (r *LedgerRepository) IsMarked(ctx context.Context, key ledger.SessionKey, member string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM attendance_marks WHERE session_key = $1 AND member_key = $2)",
		key.Encode(), member,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance mark: %w", err)
	}
	return exists, nil
}

// Records returns the session's marks in insertion order.
func (r *LedgerRepository) Records(ctx context.Context, key ledger.SessionKey) ([]ledger.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT roll_no, name, marked_at, confidence, outcome
		FROM attendance_marks
		WHERE session_key = $1
		ORDER BY marked_at, id
	`, key.Encode())
	if err != nil {
		return nil, fmt.Errorf("list attendance marks: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.RollNo, &rec.Name, &rec.Timestamp, &rec.Confidence, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scan attendance mark: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance marks: %w", err)
	}
	return records, nil
}

// Sessions lists the sessions with marks on date.
func (r *LedgerRepository) Sessions(ctx context.Context, date string) ([]ledger.SessionKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT session_key
		FROM attendance_marks
		WHERE session_date = $1
		ORDER BY session_key
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	defer rows.Close()

	var keys []ledger.SessionKey
	for rows.Next() {
		var enc string
		if err := rows.Scan(&enc); err != nil {
			return nil, fmt.Errorf("scan attendance session: %w", err)
		}
		key, err := ledger.ParseSessionKey(enc)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance sessions: %w", err)
	}
	return keys, nil
}
