package camerasvc

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/enrollment"
	"github.com/trezcool/hazira/core/face"
)

const maxSnapshotSize = 16 << 20

// SnapshotCamera grabs still images from an IP camera's snapshot endpoint (JPEG or PNG over HTTP).
type SnapshotCamera struct {
	url  string
	http *http.Client

	mu   sync.Mutex
	open bool
	seq  uint64
}

var _ enrollment.Camera = (*SnapshotCamera)(nil)

func NewSnapshotCamera(url string, timeout time.Duration) *SnapshotCamera {
	return &SnapshotCamera{url: url, http: &http.Client{Timeout: timeout}}
}

// Open checks that the camera answers with an image.
func (c *SnapshotCamera) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.mu.Unlock()

	if _, err := c.fetch(ctx); err != nil {
		return errors.Wrap(err, "opening snapshot camera")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	return nil
}

func (c *SnapshotCamera) Grab(ctx context.Context) (face.Frame, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return face.Frame{}, ErrNotOpen
	}
	c.mu.Unlock()

	data, err := c.fetch(ctx)
	if err != nil {
		return face.Frame{}, err
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	return face.FrameFromImage(seq, data)
}

func (c *SnapshotCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.open = false
	return nil
}

func (c *SnapshotCamera) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building snapshot request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "requesting snapshot")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("snapshot request failed: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot")
	}
	return data, nil
}
