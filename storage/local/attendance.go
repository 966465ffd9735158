package localdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
)

type (
	attendanceRepository struct {
		db *sqlx.DB
	}

	attendanceRow struct {
		SubjectID int64  `db:"subject_id"`
		CourseID  int64  `db:"course_id"`
		Date      string `db:"date"`
		Status    string `db:"status"`
		Synced    bool   `db:"synced"`
		Revision  int64  `db:"revision"`
		UpdatedAt int64  `db:"updated_at"` // unix nanoseconds
	}
)

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

const attendanceColumns = `subject_id, course_id, date, status, synced, revision, updated_at`

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		SubjectID: row.SubjectID,
		CourseID:  row.CourseID,
		Date:      attendance.Date(row.Date),
		Status:    attendance.Status(row.Status),
		Synced:    row.Synced,
		Revision:  row.Revision,
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}
}

func (repo *attendanceRepository) UpsertRecords(ctx context.Context, marks []attendance.Mark, at time.Time) ([]attendance.Change, error) {
	changes := make([]attendance.Change, 0, len(marks))
	err := core.Transact(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, m := range marks {
			var ch attendance.Change
			err := tx.GetContext(ctx, &ch.Previous,
				`SELECT status FROM attendance WHERE subject_id = ? AND course_id = ? AND date = ?`,
				m.SubjectID, m.CourseID, m.Date)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return errors.Wrap(err, "selecting previous status")
			}

			var row attendanceRow
			q := `
				INSERT INTO attendance (` + attendanceColumns + `)
				VALUES (?, ?, ?, ?, 0, 1, ?)
				ON CONFLICT (subject_id, course_id, date) DO UPDATE SET
					status = excluded.status,
					synced = 0,
					revision = attendance.revision + 1,
					updated_at = excluded.updated_at
				RETURNING ` + attendanceColumns
			if err = tx.QueryRowxContext(ctx, q, m.SubjectID, m.CourseID, m.Date, m.Status, at.UnixNano()).StructScan(&row); err != nil {
				return errors.Wrap(err, "upserting attendance record")
			}
			ch.Record = row.record()
			changes = append(changes, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Unsynced {
		where = append(where, "synced = 0")
	}
	if filter.CourseID != 0 {
		where = append(where, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.SubjectID != 0 {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.From != "" {
		where = append(where, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		where = append(where, "date <= ?")
		args = append(args, filter.To)
	}

	q := `SELECT ` + attendanceColumns + ` FROM attendance`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY updated_at, subject_id, course_id, date`

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo *attendanceRepository) SetSynced(ctx context.Context, records []attendance.Record) (int, error) {
	var n int64
	err := core.Transact(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			UPDATE attendance SET synced = 1
			WHERE subject_id = ? AND course_id = ? AND date = ? AND revision = ? AND synced = 0`)
		if err != nil {
			return errors.Wrap(err, "preparing statement")
		}
		defer func() { _ = stmt.Close() }()

		for _, rec := range records {
			res, err := stmt.ExecContext(ctx, rec.SubjectID, rec.CourseID, rec.Date, rec.Revision)
			if err != nil {
				return errors.Wrap(err, "flagging record synced")
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "flagging record synced")
			}
			n += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (repo *attendanceRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM attendance WHERE synced = 0`); err != nil {
		return 0, errors.Wrap(err, "counting unsynced records")
	}
	return n, nil
}
