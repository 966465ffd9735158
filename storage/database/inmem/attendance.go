package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/hazira/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) UpsertRecords(_ context.Context, marks []attendance.Mark, at time.Time) ([]attendance.Change, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	changes := make([]attendance.Change, 0, len(marks))
	for _, m := range marks {
		var ch attendance.Change
		rec, ok := repo.db.table[m.Key()]
		if ok {
			ch.Previous = rec.Status
			rec.Status = m.Status
			rec.Synced = false
			rec.Revision++
			rec.UpdatedAt = at
		} else {
			rec = &attendance.Record{
				SubjectID: m.SubjectID,
				CourseID:  m.CourseID,
				Date:      m.Date,
				Status:    m.Status,
				Revision:  1,
				UpdatedAt: at,
			}
			repo.db.table[m.Key()] = rec
		}
		ch.Record = *rec
		changes = append(changes, ch)
	}
	return changes, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]attendance.Record, 0)
	for _, rec := range repo.db.table {
		if matches(*rec, filter) {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		if a.CourseID != b.CourseID {
			return a.CourseID < b.CourseID
		}
		return a.Date < b.Date
	})
	return recs, nil
}

func (repo *attendanceRepository) SetSynced(_ context.Context, records []attendance.Record) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, r := range records {
		rec, ok := repo.db.table[r.Key()]
		if !ok || rec.Revision != r.Revision || rec.Synced {
			continue
		}
		rec.Synced = true
		n++
	}
	return n, nil
}

func (repo *attendanceRepository) CountUnsynced(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, rec := range repo.db.table {
		if !rec.Synced {
			n++
		}
	}
	return n, nil
}

func matches(rec attendance.Record, f attendance.Filter) bool {
	if f.Unsynced && rec.Synced {
		return false
	}
	if f.CourseID != 0 && rec.CourseID != f.CourseID {
		return false
	}
	if f.SubjectID != 0 && rec.SubjectID != f.SubjectID {
		return false
	}
	if f.From != "" && rec.Date < f.From {
		return false
	}
	if f.To != "" && rec.Date > f.To {
		return false
	}
	return true
}
