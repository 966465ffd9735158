package attendance_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core"
	. "github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/storage/database/inmem"
)

const day Date = "2025-10-01"

func newLedger() *Ledger {
	return NewLedger(inmemdb.NewAttendanceRepository(inmemdb.Open()))
}

func mark(subject, course int64, date Date, status Status) Mark {
	return Mark{SubjectID: subject, CourseID: course, Date: date, Status: status}
}

func TestLedger_MarkMany_upsert(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()

	changes, err := ledger.MarkMany(ctx, []Mark{mark(1, 101, day, StatusPresent)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Changed())
	assert.Equal(t, Status(""), changes[0].Previous)

	// same status again: still one record, still unsynced, not a change
	changes, err = ledger.MarkMany(ctx, []Mark{mark(1, 101, day, StatusPresent)})
	require.NoError(t, err)
	assert.False(t, changes[0].Changed())

	// new status overwrites
	changes, err = ledger.MarkMany(ctx, []Mark{mark(1, 101, day, StatusAbsent)})
	require.NoError(t, err)
	assert.True(t, changes[0].Changed())
	assert.Equal(t, StatusPresent, changes[0].Previous)

	recs, err := ledger.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, StatusAbsent, recs[0].Status)
	assert.False(t, recs[0].Synced)
}

func TestLedger_MarkMany_remarkResetsSynced(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()

	_, err := ledger.MarkMany(ctx, []Mark{mark(1, 101, day, StatusPresent)})
	require.NoError(t, err)
	snap, err := ledger.UnsyncedSnapshot(ctx)
	require.NoError(t, err)
	n, err := ledger.MarkSynced(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	_, err = ledger.MarkMany(ctx, []Mark{mark(1, 101, day, StatusPresent)})
	require.NoError(t, err)
	pending, err = ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "a re-mark always requires a new sync")
}

func TestLedger_MarkSynced_skipsRecordsRemarkedAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()

	_, err := ledger.MarkMany(ctx, []Mark{
		mark(1, 101, day, StatusPresent),
		mark(2, 101, day, StatusPresent),
	})
	require.NoError(t, err)
	snap, err := ledger.UnsyncedSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)

	// while the snapshot is "in flight": a re-mark and a brand new mark
	_, err = ledger.MarkMany(ctx, []Mark{
		mark(2, 101, day, StatusLate),
		mark(3, 101, day, StatusAbsent),
	})
	require.NoError(t, err)

	n, err := ledger.MarkSynced(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	queue, err := ledger.UnsyncedSnapshot(ctx)
	require.NoError(t, err)
	got := make(map[int64]Status)
	for _, rec := range queue {
		got[rec.SubjectID] = rec.Status
	}
	assert.Equal(t, map[int64]Status{2: StatusLate, 3: StatusAbsent}, got)
}

func TestLedger_offlineDurability(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()

	for subject := int64(1); subject <= 5; subject++ {
		_, err := ledger.MarkMany(ctx, []Mark{mark(subject, 101, day, StatusPresent)})
		require.NoError(t, err)
	}

	pending, err := ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, pending)

	snap, err := ledger.UnsyncedSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 5)
}

func TestLedger_MarkMany_validation(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()

	_, err := ledger.MarkMany(ctx, []Mark{
		mark(1, 101, day, StatusPresent),
		{SubjectID: 0, CourseID: 101, Date: "2025-13-01", Status: "sick"},
		{SubjectID: 3000000000, CourseID: core.MaxID + 1, Date: day, Status: StatusPresent},
	})
	require.Error(t, err)
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "MarkMany() error = %T, want *core.ValidationError", err)

	flds := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		flds = append(flds, f.Field)
	}
	assert.ElementsMatch(t, []string{"[1].subjectId", "[1].date", "[1].status", "[2].subjectId", "[2].courseId"}, flds)

	pending, err := ledger.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending, "an invalid batch is rejected as a whole")
}

func TestLedger_MarkMany_empty(t *testing.T) {
	changes, err := newLedger().MarkMany(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, changes)
}

func TestSummarize(t *testing.T) {
	recs := []Record{
		{SubjectID: 2, CourseID: 101, Date: "2025-10-01", Status: StatusAbsent},
		{SubjectID: 1, CourseID: 101, Date: "2025-10-01", Status: StatusPresent},
		{SubjectID: 1, CourseID: 101, Date: "2025-10-02", Status: StatusLate},
		{SubjectID: 1, CourseID: 101, Date: "2025-10-03", Status: StatusAbsent},
	}

	got := Summarize(recs)
	want := []SubjectSummary{
		{SubjectID: 1, Total: 3, Present: 1, Late: 1, Absent: 1, Percentage: 66.67},
		{SubjectID: 2, Total: 1, Absent: 1, Percentage: 0},
	}
	assert.Equal(t, want, got)
}

func TestWriteCSV(t *testing.T) {
	recs := []Record{
		{SubjectID: 1, CourseID: 101, Date: day, Status: StatusPresent, Synced: true},
		{SubjectID: 9, CourseID: 101, Date: day, Status: StatusAbsent},
	}
	idts := []identity.EnrolledIdentity{{ID: 1, ExternalRef: "CS-001", DisplayName: "Jane, Doe"}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs, idts))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"name,external_ref,subject_id,course_id,date,status,synced",
		`"Jane, Doe",CS-001,1,101,2025-10-01,present,true`,
		",,9,101,2025-10-01,absent,false",
	}, lines)
}

func TestParseStatusAndDate(t *testing.T) {
	st, err := ParseStatus(" Present ")
	assert.NoError(t, err)
	assert.Equal(t, StatusPresent, st)
	_, err = ParseStatus("sick")
	assert.Error(t, err)

	d, err := ParseDate("2025-10-01")
	assert.NoError(t, err)
	assert.Equal(t, day, d)
	_, err = ParseDate("01/10/2025")
	assert.Error(t, err)
}
