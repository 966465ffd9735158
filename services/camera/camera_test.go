package camerasvc

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSnapshotCamera(t *testing.T) {
	img := encodePNG(t, 64, 48)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	ctx := context.Background()
	cam := NewSnapshotCamera(srv.URL, time.Second)

	_, err := cam.Grab(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, cam.Open(ctx))
	assert.ErrorIs(t, cam.Open(ctx), ErrAlreadyOpen)

	for want := uint64(1); want <= 2; want++ {
		frame, err := cam.Grab(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, frame.Seq)
		assert.Equal(t, 64, frame.Width)
		assert.Equal(t, 48, frame.Height)
	}

	require.NoError(t, cam.Close())
	assert.ErrorIs(t, cam.Close(), ErrNotOpen, "a camera is released once")
}

func TestSnapshotCamera_unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cam := NewSnapshotCamera(srv.URL, time.Second)
	assert.Error(t, cam.Open(context.Background()))
	assert.ErrorIs(t, cam.Close(), ErrNotOpen)
}

func TestDirCamera(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), encodePNG(t, 20, 10), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), encodePNG(t, 10, 10), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))

	ctx := context.Background()
	cam := NewDirCamera(dir)
	require.NoError(t, cam.Open(ctx))

	widths := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		frame, err := cam.Grab(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), frame.Seq)
		widths = append(widths, frame.Width)
	}
	assert.Equal(t, []int{10, 20, 20}, widths, "images are replayed in name order, the last one repeated")

	require.NoError(t, cam.Close())
	_, err := cam.Grab(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestDirCamera_empty(t *testing.T) {
	cam := NewDirCamera(t.TempDir())
	assert.Error(t, cam.Open(context.Background()))
}

func TestNew(t *testing.T) {
	conf := &core.Config{}
	_, err := New(conf)
	assert.ErrorIs(t, err, ErrNotConfigured)

	conf.Camera.ReplayDir = "frames"
	cam, err := New(conf)
	require.NoError(t, err)
	assert.IsType(t, &DirCamera{}, cam)

	conf.Camera.SnapshotURL = "http://camera.local/snapshot.jpg"
	cam, err = New(conf)
	require.NoError(t, err)
	assert.IsType(t, &SnapshotCamera{}, cam)
}
