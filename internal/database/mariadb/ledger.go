package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendance (
    id           BIGINT AUTO_INCREMENT PRIMARY KEY,
    session_key  VARCHAR(255) NOT NULL,
    session_date DATE NOT NULL,
    department   VARCHAR(128) NOT NULL DEFAULT '',
    year         VARCHAR(64) NOT NULL DEFAULT '',
    division     VARCHAR(64) NOT NULL DEFAULT '',
    time_slot    VARCHAR(128) NOT NULL DEFAULT '',
    member_key   VARCHAR(191) NOT NULL,
    roll_no      VARCHAR(64) NOT NULL DEFAULT '',
    name         VARCHAR(255) NOT NULL,
    confidence   DOUBLE NOT NULL,
    status       VARCHAR(32) NOT NULL,
    marked_at    DATETIME(6) NOT NULL,
    UNIQUE KEY uq_attendance_session_member (session_key, member_key),
    KEY idx_attendance_date (session_date)
) DEFAULT CHARSET = utf8mb4`

// LedgerRepository stores marks in the attendance table. The unique key on
// (session_key, member_key) combined with INSERT IGNORE makes marking idempotent.
type LedgerRepository struct {
	pool *Pool
}

// NewLedgerRepository creates a new MariaDB attendance ledger.
func NewLedgerRepository(pool *Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// EnsureSchema creates the attendance table if it does not exist.
func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create attendance table: %w", err)
	}
	return nil
}

// MarkPresent inserts the mark unless the member already has one in the session.
func (r *LedgerRepository) MarkPresent(ctx context.Context, key ledger.SessionKey, m ledger.Mark) (ledger.MarkResult, error) {
	result, err := r.pool.db.ExecContext(ctx, `
		INSERT IGNORE INTO attendance (
			session_key, session_date, department, year, division, time_slot,
			member_key, roll_no, name, confidence, status, marked_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		key.Encode(), key.Date, key.Department, key.Year, key.Division, key.TimeSlot,
		m.Key(), m.RollNo, m.Name, m.Confidence, m.Outcome, m.At.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert attendance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert attendance: %w", err)
	}
	if n == 0 {
		return ledger.AlreadyMarked, nil
	}
	return ledger.Marked, nil
}

// IsMarked reports whether member (see ledger.MemberKey) has a mark in the session.
func (r *LedgerRepository) IsMarked(ctx context.Context, key ledger.SessionKey, member string) (bool, error) {
	var exists bool
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM attendance WHERE session_key = ? AND member_key = ?)",
		key.Encode(), member,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// Records returns the session's marks in insertion order.
func (r *LedgerRepository) Records(ctx context.Context, key ledger.SessionKey) ([]ledger.Record, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT roll_no, name, marked_at, confidence, status
		FROM attendance
		WHERE session_key = ?
		ORDER BY marked_at, id
	`, key.Encode())
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.RollNo, &rec.Name, &rec.Timestamp, &rec.Confidence, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// Sessions lists the sessions with marks on date.
func (r *LedgerRepository) Sessions(ctx context.Context, date string) ([]ledger.SessionKey, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT DISTINCT session_key FROM attendance WHERE session_date = ? ORDER BY session_key", date)
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
