// Package camerasvc provides the enrollment cameras available to a kiosk.
package camerasvc

import (
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/enrollment"
)

var (
	ErrNotOpen       = errors.New("camera is not open")
	ErrAlreadyOpen   = errors.New("camera is already open")
	ErrNotConfigured = errors.New("no camera configured: set CAMERA_SNAPSHOTURL or CAMERA_REPLAYDIR")
)

// New returns the camera configured for the kiosk: an IP camera snapshot URL takes precedence over a replay directory.
func New(conf *core.Config) (enrollment.Camera, error) {
	switch {
	case conf.Camera.SnapshotURL != "":
		return NewSnapshotCamera(conf.Camera.SnapshotURL, conf.Sync.RequestTimeout), nil
	case conf.Camera.ReplayDir != "":
		return NewDirCamera(conf.Camera.ReplayDir), nil
	default:
		return nil, ErrNotConfigured
	}
}
