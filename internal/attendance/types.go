package attendance

import (
	"fmt"
	"time"
)

// Session is the sub-division of a day forming part of the uniqueness key.
type Session string

const (
	SessionMorning   Session = "MORNING"
	SessionAfternoon Session = "AFTERNOON"
	SessionFullDay   Session = "FULL_DAY"
)

// ValidSession reports whether s is one of the known sessions.
func ValidSession(s Session) bool {
	switch s {
	case SessionMorning, SessionAfternoon, SessionFullDay:
		return true
	}
	return false
}

// Status values mirror the school-management application's attendance states.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusHalfDay Status = "HALF_DAY"
	StatusHoliday Status = "HOLIDAY"
	StatusLeave   Status = "LEAVE"
)

// IsPresent reports whether a status already denotes presence. A repeat match
// against any of these is an idempotent no-op, not an upgrade.
func (s Status) IsPresent() bool {
	return s == StatusPresent || s == StatusLate || s == StatusHalfDay
}

// SourceBiometric marks records created by this subsystem.
const SourceBiometric = "BIOMETRIC"

// Key is the uniqueness key of one attendance record. At most one row may
// exist per key, even under concurrent commits.
type Key struct {
	Tenant      string
	SubjectKind string
	SubjectID   string
	Date        time.Time // date component only, in the serving timezone
	Session     Session
}

// DateString formats the key date the way the store persists it.
func (k Key) DateString() string {
	return k.Date.Format("2006-01-02")
}

// Outcome describes the result of an idempotent commit.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyMarked Outcome = "already_marked"
	OutcomeUpgraded      Outcome = "upgraded"
)

// Record is one persisted attendance row.
type Record struct {
	ID          int64
	Tenant      string
	SubjectKind string
	SubjectID   string
	SubjectName string
	Date        time.Time
	Session     Session
	Status      Status
	Source      string
	Remark      string
	MarkedAt    time.Time
}

// PersistenceError signals a storage failure during commit or reporting. The
// verification outcome that preceded it stays valid; callers surface the two
// independently.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("attendance storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
