package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository performs idempotent attendance writes and day-report reads.
type Repository struct {
	pool         *Pool
	allowUpgrade bool
}

// NewRepository creates a repository. When allowUpgrade is true an existing
// non-present status (e.g. ABSENT pre-marked by the office) is upgraded to
// PRESENT by a biometric match; otherwise the existing row is left untouched.
func NewRepository(pool *Pool, allowUpgrade bool) *Repository {
	return &Repository{pool: pool, allowUpgrade: allowUpgrade}
}

// Commit records presence for the given key exactly once. The insert relies
// on the storage-level uniqueness constraint, so two concurrent callers for
// the same key resolve to exactly one row and both receive a well-defined
// outcome; a constraint violation is never surfaced.
func (r *Repository) Commit(ctx context.Context, key Key, subjectName, remark string) (Outcome, error) {
	res, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records (tenant, subject_kind, subject_id, subject_name, date, session, status, source, remark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT attendance_records_key DO NOTHING
	`, key.Tenant, key.SubjectKind, key.SubjectID, subjectName, key.DateString(), string(key.Session),
		string(StatusPresent), SourceBiometric, remark)
	if err != nil {
		return "", &PersistenceError{Op: "insert attendance record", Err: err}
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return "", &PersistenceError{Op: "read insert result", Err: err}
	}
	if inserted == 1 {
		return OutcomeCreated, nil
	}

	if !r.allowUpgrade {
		return OutcomeAlreadyMarked, nil
	}

	// Single atomic conditional update: only a row whose status does not
	// already denote presence is touched. No delete-then-insert.
	res, err = r.pool.Exec(ctx, `
		UPDATE attendance_records
		SET status = $6,
		    remark = CASE WHEN remark = '' THEN $7 ELSE remark || '; ' || $7 END,
		    marked_at = NOW()
		WHERE tenant = $1 AND subject_kind = $2 AND subject_id = $3 AND date = $4 AND session = $5
		  AND status NOT IN ($8, $9, $10)
	`, key.Tenant, key.SubjectKind, key.SubjectID, key.DateString(), string(key.Session),
		string(StatusPresent), "upgraded to present by biometric verification: "+remark,
		string(StatusPresent), string(StatusLate), string(StatusHalfDay))
	if err != nil {
		return "", &PersistenceError{Op: "upgrade attendance status", Err: err}
	}

	upgraded, err := res.RowsAffected()
	if err != nil {
		return "", &PersistenceError{Op: "read upgrade result", Err: err}
	}
	if upgraded == 1 {
		return OutcomeUpgraded, nil
	}
	return OutcomeAlreadyMarked, nil
}

// Get returns the record for a key, or nil when none exists.
func (r *Repository) Get(ctx context.Context, key Key) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant, subject_kind, subject_id, subject_name, date, session, status, source, remark, marked_at
		FROM attendance_records
		WHERE tenant = $1 AND subject_kind = $2 AND subject_id = $3 AND date = $4 AND session = $5
	`, key.Tenant, key.SubjectKind, key.SubjectID, key.DateString(), string(key.Session))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get attendance record", Err: err}
	}
	return rec, nil
}

// DayReport aggregates one tenant's attendance rows for a single date.
type DayReport struct {
	Tenant  string
	Date    time.Time
	Rows    []Record
	Summary map[Status]int
}

// Daily returns all attendance rows for a tenant and date with per-status counts.
func (r *Repository) Daily(ctx context.Context, tenant string, date time.Time) (*DayReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant, subject_kind, subject_id, subject_name, date, session, status, source, remark, marked_at
		FROM attendance_records
		WHERE tenant = $1 AND date = $2
		ORDER BY subject_kind, subject_id, session
	`, tenant, date.Format("2006-01-02"))
	if err != nil {
		return nil, &PersistenceError{Op: "query daily report", Err: err}
	}
	defer rows.Close()

	report := &DayReport{Tenant: tenant, Date: date, Summary: make(map[Status]int)}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan daily report row", Err: err}
		}
		report.Rows = append(report.Rows, *rec)
		report.Summary[rec.Status]++
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate daily report", Err: err}
	}
	return report, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var session, status string
	err := row.Scan(
		&rec.ID, &rec.Tenant, &rec.SubjectKind, &rec.SubjectID, &rec.SubjectName,
		&rec.Date, &session, &status, &rec.Source, &rec.Remark, &rec.MarkedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Session = Session(session)
	rec.Status = Status(status)
	return &rec, nil
}
