package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

type (
	Repository interface {
		// UpsertRecords writes all marks in one transaction and returns one Change per mark, in order.
		// An existing key gets the new status, synced=false and a bumped revision.
		UpsertRecords(ctx context.Context, marks []Mark, at time.Time) ([]Change, error)
		// QueryRecords returns the matching records ordered by (updated_at, subject_id, course_id, date).
		QueryRecords(ctx context.Context, filter Filter) ([]Record, error)
		// SetSynced flags the given records as synced, skipping any whose revision has moved on.
		SetSynced(ctx context.Context, records []Record) (int, error)
		CountUnsynced(ctx context.Context) (int, error)
	}

	// Ledger is the authoritative local record of attendance facts.
	// The sync queue is the unsynced subset of the ledger; it is never stored separately.
	Ledger struct {
		repo Repository
	}
)

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// MarkMany upserts marks by (subject, course, date). Re-marking a key always requires a new sync.
func (l *Ledger) MarkMany(ctx context.Context, marks []Mark) ([]Change, error) {
	if len(marks) == 0 {
		return nil, nil
	}
	if err := validateMarks(marks); err != nil {
		return nil, err
	}
	changes, err := l.repo.UpsertRecords(ctx, marks, NowFunc().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "upserting attendance records")
	}
	return changes, nil
}

// UnsyncedSnapshot returns the current sync queue. The ledger keeps accepting marks while it is in use.
func (l *Ledger) UnsyncedSnapshot(ctx context.Context) ([]Record, error) {
	recs, err := l.repo.QueryRecords(ctx, Filter{Unsynced: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying unsynced records")
	}
	return recs, nil
}

// MarkSynced flags the records of a confirmed snapshot as synced.
// Records re-marked since the snapshot was taken stay queued.
func (l *Ledger) MarkSynced(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := l.repo.SetSynced(ctx, records)
	if err != nil {
		return 0, errors.Wrap(err, "marking records synced")
	}
	return n, nil
}

// Pending returns the sync queue length.
func (l *Ledger) Pending(ctx context.Context) (int, error) {
	n, err := l.repo.CountUnsynced(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "counting unsynced records")
	}
	return n, nil
}

func (l *Ledger) Query(ctx context.Context, filter Filter) ([]Record, error) {
	recs, err := l.repo.QueryRecords(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return recs, nil
}

func validateMarks(marks []Mark) error {
	var flds []core.FieldError
	for i, m := range marks {
		prefix := fmt.Sprintf("[%d].", i)
		if !core.ValidID(m.SubjectID) {
			flds = append(flds, core.FieldError{Field: prefix + "subjectId", Error: idText})
		}
		if !core.ValidID(m.CourseID) {
			flds = append(flds, core.FieldError{Field: prefix + "courseId", Error: idText})
		}
		if !m.Date.Valid() {
			flds = append(flds, core.FieldError{Field: prefix + "date", Error: "must be a calendar date formatted as YYYY-MM-DD"})
		}
		if !m.Status.Valid() {
			flds = append(flds, core.FieldError{Field: prefix + "status", Error: statusText})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid attendance records"), flds...)
	}
	return nil
}
