package camerasvc

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/enrollment"
	"github.com/trezcool/hazira/core/face"
)

// DirCamera replays the images of a directory in name order, then keeps repeating the last one.
// It stands in for a real camera on development machines and in demos.
type DirCamera struct {
	dir string

	mu    sync.Mutex
	open  bool
	files []string
	next  int
}

var _ enrollment.Camera = (*DirCamera)(nil)

func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{dir: dir}
}

func (c *DirCamera) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return ErrAlreadyOpen
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrapf(err, "reading replay directory %s", c.dir)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(c.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return errors.Errorf("no images in replay directory %s", c.dir)
	}
	sort.Strings(files)

	c.files = files
	c.next = 0
	c.open = true
	return nil
}

func (c *DirCamera) Grab(ctx context.Context) (face.Frame, error) {
	if err := ctx.Err(); err != nil {
		return face.Frame{}, err
	}

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return face.Frame{}, ErrNotOpen
	}
	i := c.next
	if i >= len(c.files) {
		i = len(c.files) - 1
	}
	c.next++
	path := c.files[i]
	seq := uint64(c.next)
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return face.Frame{}, errors.Wrapf(err, "reading %s", path)
	}
	return face.FrameFromImage(seq, data)
}

func (c *DirCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.open = false
	c.files = nil
	return nil
}
