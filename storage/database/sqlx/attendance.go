package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// BulkUpsert writes marks in one statement, keyed by (student_id, course_id, date).
// When a key appears several times in marks, the last one wins. It returns the number of rows written.
func (repo *attendanceRepository) BulkUpsert(ctx context.Context, marks []attendance.Mark) (int, error) {
	marks = dedupe(marks)
	if len(marks) == 0 {
		return 0, nil
	}

	subjects := make([]int64, 0, len(marks))
	courses := make([]int64, 0, len(marks))
	dates := make([]string, 0, len(marks))
	statuses := make([]string, 0, len(marks))
	for _, m := range marks {
		subjects = append(subjects, m.SubjectID)
		courses = append(courses, m.CourseID)
		dates = append(dates, string(m.Date))
		statuses = append(statuses, string(m.Status))
	}

	q := `
		INSERT INTO attendance (student_id, course_id, date, status)
		SELECT * FROM unnest($1::integer[], $2::integer[], $3::date[], $4::varchar[])
		ON CONFLICT (student_id, course_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = CURRENT_TIMESTAMP`
	res, err := repo.db.ExecContext(ctx, q, pq.Array(subjects), pq.Array(courses), pq.Array(dates), pq.Array(statuses))
	if err != nil {
		return 0, errors.Wrap(err, "upserting attendance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "upserting attendance")
	}
	return int(n), nil
}

// dedupe keeps the last mark of every key, in order of last appearance.
func dedupe(marks []attendance.Mark) []attendance.Mark {
	last := make(map[attendance.Key]int, len(marks))
	for i, m := range marks {
		last[m.Key()] = i
	}
	if len(last) == len(marks) {
		return marks
	}
	out := make([]attendance.Mark, 0, len(last))
	for i, m := range marks {
		if last[m.Key()] == i {
			out = append(out, m)
		}
	}
	return out
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.CourseID != 0 {
		arg("course_id = $%d", filter.CourseID)
	}
	if filter.SubjectID != 0 {
		arg("student_id = $%d", filter.SubjectID)
	}
	if filter.From != "" {
		arg("date >= $%d::date", string(filter.From))
	}
	if filter.To != "" {
		arg("date <= $%d::date", string(filter.To))
	}

	q := `
		SELECT student_id AS subject_id, course_id, to_char(date, 'YYYY-MM-DD') AS date, status,
			TRUE AS synced, updated_at
		FROM attendance`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY date DESC, course_id, student_id`

	recs := make([]attendance.Record, 0)
	if err := repo.db.SelectContext(ctx, &recs, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance")
	}
	return recs, nil
}
