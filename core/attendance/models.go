package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

// Statuses
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

var (
	AllStatuses = []Status{StatusPresent, StatusAbsent, StatusLate}

	NowFunc = time.Now // mockable
)

type Status string

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Attended reports whether the status counts towards the attendance percentage.
func (s Status) Attended() bool { return s == StatusPresent || s == StatusLate }

func ParseStatus(s string) (Status, error) {
	st := Status(core.CleanString(s, true /* lower */))
	if !st.Valid() {
		return "", errors.Errorf("invalid status %q: expected one of present, absent, late", s)
	}
	return st, nil
}

// Date is a calendar day (YYYY-MM-DD) without time or zone.
type Date string

func DateOf(t time.Time) Date { return Date(t.Format(core.DateLayout)) }

// Today returns the current calendar day in the kiosk's local time.
func Today() Date { return DateOf(NowFunc()) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(core.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", errors.Wrapf(err, "parsing date %q", s)
	}
	return DateOf(t), nil
}

func (d Date) Valid() bool {
	_, err := time.Parse(core.DateLayout, string(d))
	return err == nil
}

func (d Date) String() string { return string(d) }

// Key identifies one logical attendance record.
type Key struct {
	SubjectID int64 `json:"subjectId"`
	CourseID  int64 `json:"courseId"`
	Date      Date  `json:"date"`
}

func (k Key) String() string { return fmt.Sprintf("%d/%d/%s", k.SubjectID, k.CourseID, k.Date) }

// Mark is an attendance fact as submitted by a kiosk: the payload of the bulk upsert.
type Mark struct {
	SubjectID int64  `json:"subjectId" validate:"required,dbid"`
	CourseID  int64  `json:"courseId" validate:"required,dbid"`
	Date      Date   `json:"date" validate:"required,isodate"`
	Status    Status `json:"status" validate:"required,attstatus"`
}

func (m Mark) Key() Key { return Key{SubjectID: m.SubjectID, CourseID: m.CourseID, Date: m.Date} }

// Record is a Mark as stored in the ledger.
// Revision is bumped by every write to the key so that a sync confirmation
// never acknowledges a re-mark it did not carry.
type Record struct {
	SubjectID int64     `json:"subjectId" db:"subject_id"`
	CourseID  int64     `json:"courseId" db:"course_id"`
	Date      Date      `json:"date" db:"date"`
	Status    Status    `json:"status" db:"status"`
	Synced    bool      `json:"synced" db:"synced"`
	Revision  int64     `json:"-" db:"revision"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (r Record) Key() Key { return Key{SubjectID: r.SubjectID, CourseID: r.CourseID, Date: r.Date} }

func (r Record) Mark() Mark {
	return Mark{SubjectID: r.SubjectID, CourseID: r.CourseID, Date: r.Date, Status: r.Status}
}

// Change is the outcome of writing one Mark. Previous is empty when the key was new.
type Change struct {
	Record   Record
	Previous Status
}

// Changed reports whether the write was a new mark or a status change (as opposed to a repeat).
func (c Change) Changed() bool { return c.Previous != c.Record.Status }

type Filter struct {
	CourseID  int64 `query:"course_id"`
	SubjectID int64 `query:"subject_id"`
	From      Date  `query:"from"`
	To        Date  `query:"to"`
	Unsynced  bool  `query:"-"`
}

type SubjectSummary struct {
	SubjectID  int64   `json:"subjectId"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Late       int     `json:"late"`
	Absent     int     `json:"absent"`
	Percentage float64 `json:"percentage"`
}
