package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/enrollment"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/syncer"
	notifysvc "github.com/trezcool/hazira/services/notify"
	"github.com/trezcool/hazira/storage/database/inmem"
	"github.com/trezcool/hazira/testutil"
)

var errUnreachable = errors.New("connection refused")

type portalMock struct {
	mu         sync.Mutex
	online     bool
	batches    []syncer.Batch
	pushed     []identity.EnrolledIdentity
	putErr     error
	identities []identity.EnrolledIdentity
}

func (p *portalMock) setOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *portalMock) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return errUnreachable
	}
	return nil
}

func (p *portalMock) BulkUpsert(_ context.Context, batch syncer.Batch) (syncer.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return syncer.Ack{}, &syncer.TransientError{Err: errUnreachable}
	}
	p.batches = append(p.batches, batch)
	return syncer.Ack{}, nil
}

func (p *portalMock) PutIdentity(_ context.Context, idt identity.EnrolledIdentity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return &syncer.TransientError{Err: errUnreachable}
	}
	if p.putErr != nil {
		return p.putErr
	}
	p.pushed = append(p.pushed, idt)
	return nil
}

func (p *portalMock) ListIdentities(context.Context) ([]identity.EnrolledIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identities, nil
}

func (p *portalMock) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type fixture struct {
	cli    *commandLine
	out    *bytes.Buffer
	app    *app
	faces  *testutil.Faces
	camera *testutil.Camera
	portal *portalMock
	sender *notifysvc.ConsoleSender
}

func setup(t *testing.T, withFaces bool) fixture {
	conf := &core.Config{AppName: "Hazira"}
	conf.Kiosk.DeviceID = "kiosk-1"
	conf.Kiosk.TickInterval = time.Millisecond
	conf.Enrollment.CountdownTicks = 1
	conf.Enrollment.MaxAttempts = 5
	conf.Notify.Timeout = time.Second
	conf.Sync.ProbeInterval = time.Hour
	conf.Sync.RetryInterval = time.Hour

	db := inmemdb.Open()
	fx := fixture{
		out:    new(bytes.Buffer),
		faces:  testutil.NewFaces(),
		camera: testutil.NewCamera(640, 480, 0),
		portal: &portalMock{online: true},
		sender: notifysvc.NewConsoleSenderMock(),
	}
	deps := appDeps{
		Conf:       conf,
		Logger:     testutil.NewLogger(),
		Identities: inmemdb.NewIdentityRepository(db),
		Attendance: inmemdb.NewAttendanceRepository(db),
		Sender:     fx.sender,
		Portal:     fx.portal,
		Camera: func() (enrollment.Camera, error) {
			return fx.camera, nil
		},
	}
	if withFaces {
		deps.Faces = fx.faces
	}
	fx.app = assemble(deps)
	fx.cli = &commandLine{app: fx.app, out: fx.out}
	t.Cleanup(fx.app.close)
	return fx
}

// run runs the command and returns its output.
func (fx fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	fx.out.Reset()
	err := fx.cli.run(context.Background(), append([]string{"kiosk"}, args...))
	return fx.out.String(), err
}

func (fx fixture) pending(t *testing.T) int {
	t.Helper()
	n, err := fx.app.engine.Pending(context.Background())
	require.NoError(t, err)
	return n
}

func writePhoto(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 640, 480))))
	path := filepath.Join(t.TempDir(), "class.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestCommandLine_usage(t *testing.T) {
	fx := setup(t, true)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command"},
		{name: "unknown command", args: []string{"lol"}},
		{name: "enroll without id", args: []string{"enroll", "--ref", "R-1"}},
		{name: "mark without photo", args: []string{"mark", "--course", "7"}},
		{name: "set without status", args: []string{"set", "--course", "7", "--subject", "1"}},
		{name: "export without course", args: []string{"export"}},
		{name: "unknown flag", args: []string{"summary", "--lol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fx.run(t, tt.args...); err != errHelp {
				t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
			}
		})
	}
}

func TestCommandLine_enroll(t *testing.T) {
	fx := setup(t, true)
	fx.faces.On(1, testutil.CenteredFace(640, 480, 200, 200, 0.99, 0.5, 0.5))

	out, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007", "--name", "Jane Doe", "--notify", "parent@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Face enrolled successfully.")
	assert.Contains(t, out, "enrolled Jane Doe (CS-007, id 7)")

	idt, err := fx.app.store.FindByExternalRef(context.Background(), "CS-007")
	require.NoError(t, err)
	assert.Equal(t, face.Descriptor{0.5, 0.5}, idt.Descriptor)
	assert.Equal(t, "parent@example.com", idt.NotifyAddress)

	require.Len(t, fx.portal.pushed, 1, "the enrollment is mirrored to the portal")
	opens, closes := fx.camera.Counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
}

func TestCommandLine_enroll_portalDown(t *testing.T) {
	fx := setup(t, true)
	fx.portal.setOnline(false)
	fx.faces.On(1, testutil.CenteredFace(640, 480, 200, 200, 0.99, 0.5, 0.5))

	out, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007")
	require.NoError(t, err, "the portal is best effort")
	assert.Contains(t, out, "only stored on this device")

	_, err = fx.app.store.FindByExternalRef(context.Background(), "CS-007")
	assert.NoError(t, err)
}

func TestCommandLine_enroll_portalRefuses(t *testing.T) {
	fx := setup(t, true)
	fx.portal.putErr = &syncer.RejectedError{Status: 400, Message: "descriptor must have 128 values (got 2)"}
	fx.faces.On(1, testutil.CenteredFace(640, 480, 200, 200, 0.99, 0.5, 0.5))

	out, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007")
	require.NoError(t, err)
	assert.Contains(t, out, "the portal refused the enrollment")
	assert.Contains(t, out, "descriptor must have 128 values")
	assert.NotContains(t, out, "could not be reached")
}

func TestCommandLine_enroll_failures(t *testing.T) {
	t.Run("invalid notify address", func(t *testing.T) {
		fx := setup(t, true)
		_, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007", "--notify", "junk")
		assert.True(t, core.IsValidationError(err), "cli.run() error = %v, want a validation error", err)
		opens, _ := fx.camera.Counts()
		assert.Equal(t, 0, opens, "the camera is not opened for an invalid enrollment")
		_, err = fx.app.store.FindByExternalRef(context.Background(), "CS-007")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("no face model", func(t *testing.T) {
		fx := setup(t, false)
		_, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007")
		assert.ErrorIs(t, err, attendance.ErrNoFaceCapability)
	})

	t.Run("nobody in front of the camera", func(t *testing.T) {
		fx := setup(t, true)
		out, err := fx.run(t, "enroll", "--id", "7", "--ref", "CS-007")
		require.Error(t, err)
		assert.True(t, enrollment.IsCaptureError(err))
		assert.Contains(t, out, enrollment.ReasonNoFace.Guidance())
		_, closes := fx.camera.Counts()
		assert.Equal(t, 1, closes)
	})
}

func TestCommandLine_mark(t *testing.T) {
	fx := setup(t, true)
	testutil.Enroll(t, fx.app.store, 1, "R-1", 0, 0)
	testutil.Enroll(t, fx.app.store, 2, "R-2", 1, 1)
	fx.faces.On(1,
		testutil.Face{Detection: face.Detection{Box: face.Box{X: 10, Y: 10, W: 50, H: 50}, Confidence: 1}, Descriptor: face.Descriptor{0.05, 0}},
		testutil.Face{Detection: face.Detection{Box: face.Box{X: 100, Y: 10, W: 50, H: 50}, Confidence: 1}, Descriptor: face.Descriptor{9, 9}},
	)
	photo := writePhoto(t)

	out, err := fx.run(t, "mark", "--course", "7", "--photo", photo, "--date", "2024-03-01", "--roster", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 face(s), 1 recognized, 1 unknown")
	assert.Contains(t, out, "synced 2 of 2 record(s), 0 pending")

	records, err := fx.app.ledger.Query(context.Background(), attendance.Filter{CourseID: 7})
	require.NoError(t, err)
	got := make(map[int64]attendance.Status)
	for _, rec := range records {
		got[rec.SubjectID] = rec.Status
		assert.True(t, rec.Synced)
	}
	assert.Equal(t, map[int64]attendance.Status{1: attendance.StatusPresent, 2: attendance.StatusAbsent}, got)
	assert.Equal(t, 1, fx.portal.batchCount())
}

func TestCommandLine_offlineThenSync(t *testing.T) {
	fx := setup(t, true)
	fx.portal.setOnline(false)

	for _, subject := range []string{"1", "2", "3"} {
		out, err := fx.run(t, "set", "--course", "7", "--subject", subject, "--status", "present", "--date", "2024-03-01")
		require.NoError(t, err)
		assert.Contains(t, out, "marked")
		assert.Contains(t, out, "queued")
	}
	assert.Equal(t, 3, fx.pending(t))

	out, err := fx.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "unreachable")
	assert.Regexp(t, `pending\s+3`, out)

	fx.portal.setOnline(true)
	out, err = fx.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 3 of 3 record(s), 0 pending")
	assert.Equal(t, 0, fx.pending(t))

	out, err = fx.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
	assert.Equal(t, 1, fx.portal.batchCount())
}

func TestCommandLine_set(t *testing.T) {
	fx := setup(t, true)
	_, err := fx.app.store.Put(context.Background(), identity.EnrolledIdentity{
		ID: 1, ExternalRef: "R-1", DisplayName: "Alice", Descriptor: face.Descriptor{0, 0}, NotifyAddress: "+243810000000",
	})
	require.NoError(t, err)

	_, err = fx.run(t, "set", "--course", "7", "--subject", "1", "--status", "Late", "--date", "2024-03-01")
	require.NoError(t, err)
	out, err := fx.run(t, "set", "--course", "7", "--subject", "1", "--status", "late", "--date", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "already marked")

	_, err = fx.run(t, "set", "--course", "7", "--subject", "1", "--status", "sick")
	assert.Error(t, err)
	_, err = fx.run(t, "set", "--course", "7", "--subject", "1", "--status", "late", "--date", "yesterday")
	assert.Error(t, err)

	fx.app.dispatcher.Wait()
	sent := fx.sender.SentMessages()
	require.Len(t, sent, 1, "a repeated status is not notified again")
	assert.Equal(t, "+243810000000", sent[0].Address)
	assert.Contains(t, sent[0].Text, "late")
}

func TestCommandLine_summaryAndExport(t *testing.T) {
	fx := setup(t, true)
	testutil.Enroll(t, fx.app.store, 1, "R-1", 0, 0)
	_, err := fx.app.svc.MarkMany(context.Background(),
		attendance.Mark{SubjectID: 1, CourseID: 7, Date: "2024-03-01", Status: attendance.StatusPresent},
		attendance.Mark{SubjectID: 1, CourseID: 7, Date: "2024-03-02", Status: attendance.StatusAbsent},
		attendance.Mark{SubjectID: 2, CourseID: 8, Date: "2024-03-01", Status: attendance.StatusLate},
	)
	require.NoError(t, err)

	out, err := fx.run(t, "summary", "--course", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "50.00%")

	out, err = fx.run(t, "summary", "--course", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "no attendance recorded")

	out, err = fx.run(t, "export", "--course", "7", "--to", "2024-03-01")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "name,external_ref,subject_id,course_id,date,status,synced", lines[0])
	assert.Equal(t, "Student R-1,R-1,1,7,2024-03-01,present,false", lines[1])

	path := filepath.Join(t.TempDir(), "course7.csv")
	out, err = fx.run(t, "export", "--course", "7", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 record(s)")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestCommandLine_pullFaces(t *testing.T) {
	fx := setup(t, true)
	testutil.Enroll(t, fx.app.store, 1, "R-1", 0, 0)
	fx.portal.identities = []identity.EnrolledIdentity{
		{ID: 2, ExternalRef: "R-2", DisplayName: "Bob", Descriptor: face.Descriptor{1, 1}},
		{ID: 3, ExternalRef: "R-3", DisplayName: "Carl", Descriptor: face.Descriptor{1, 1, 1}},
	}

	out, err := fx.run(t, "pull-faces")
	require.NoError(t, err)
	assert.Contains(t, out, "pulled 1 face(s)")
	assert.Contains(t, out, "skipped 1")

	idts, err := fx.app.store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, idts, 2)
}

func TestCommandLine_watch(t *testing.T) {
	fx := setup(t, true)
	_, err := fx.app.svc.MarkMany(context.Background(),
		attendance.Mark{SubjectID: 1, CourseID: 7, Date: "2024-03-01", Status: attendance.StatusPresent})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, fx.cli.run(ctx, []string{"kiosk", "watch"}))

	assert.Equal(t, 1, fx.portal.batchCount(), "reconnecting flushes the queue once")
	assert.Equal(t, 0, fx.pending(t))
}
