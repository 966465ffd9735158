package sqlxrepos

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/storage/database"
)

const day attendance.Date = "2025-10-01"

// testDB connects to the database named by HAZIRA_TEST_DATABASE_URL, skipping the test when unset.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("HAZIRA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HAZIRA_TEST_DATABASE_URL is not set")
	}
	db, err := database.OpenURL(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db.DB))
	_, err = db.ExecContext(ctx, `TRUNCATE attendance, student_faces`)
	require.NoError(t, err)
	return db
}

func mark(subject int64, status attendance.Status) attendance.Mark {
	return attendance.Mark{SubjectID: subject, CourseID: 101, Date: day, Status: status}
}

func TestDedupe(t *testing.T) {
	marks := []attendance.Mark{
		mark(1, attendance.StatusPresent),
		mark(2, attendance.StatusPresent),
		mark(1, attendance.StatusAbsent),
	}
	got := dedupe(marks)
	assert.Equal(t, []attendance.Mark{mark(2, attendance.StatusPresent), mark(1, attendance.StatusAbsent)}, got)

	unique := marks[:2]
	assert.Equal(t, unique, dedupe(unique))
}

func TestAttendanceRepository_BulkUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewAttendanceRepository(testDB(t))

	n, err := repo.BulkUpsert(ctx, []attendance.Mark{mark(1, attendance.StatusPresent), mark(1, attendance.StatusPresent)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.BulkUpsert(ctx, []attendance.Mark{mark(1, attendance.StatusPresent)})
	require.NoError(t, err)

	recs, err := repo.QueryRecords(ctx, attendance.Filter{CourseID: 101})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.StatusPresent, recs[0].Status)
	assert.Equal(t, day, recs[0].Date)

	_, err = repo.BulkUpsert(ctx, []attendance.Mark{mark(1, attendance.StatusAbsent), mark(2, attendance.StatusLate)})
	require.NoError(t, err)
	recs, err = repo.QueryRecords(ctx, attendance.Filter{CourseID: 101, From: day, To: day})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	got := map[int64]attendance.Status{recs[0].SubjectID: recs[0].Status, recs[1].SubjectID: recs[1].Status}
	assert.Equal(t, map[int64]attendance.Status{1: attendance.StatusAbsent, 2: attendance.StatusLate}, got)

	recs, err = repo.QueryRecords(ctx, attendance.Filter{SubjectID: 2})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()
	store := identity.NewStore(NewIdentityRepository(testDB(t)))

	_, err := store.Put(ctx, identity.EnrolledIdentity{ID: 1, ExternalRef: "CS-001", Descriptor: face.Descriptor{0.5, -0.25}})
	require.NoError(t, err)
	_, err = store.Put(ctx, identity.EnrolledIdentity{ID: 1, ExternalRef: "CS-001", Descriptor: face.Descriptor{1, 2}, NotifyAddress: "+243810000000"})
	require.NoError(t, err)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, face.Descriptor{1, 2}, all[0].Descriptor)
	assert.Equal(t, "+243810000000", all[0].NotifyAddress)

	_, err = store.Put(ctx, identity.EnrolledIdentity{ID: 2, ExternalRef: "CS-002", Descriptor: face.Descriptor{1, 2, 3}})
	assert.Error(t, err)
}
