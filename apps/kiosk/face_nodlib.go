//go:build !dlib

package main

import (
	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
)

// loadFaces reports no capability: this binary was built without the dlib tag.
// Attendance can still be set by hand and synced.
func loadFaces(_ *core.Config, logger core.Logger) (face.Capability, func(), error) {
	logger.Warn("built without face recognition (rebuild with -tags dlib)")
	return nil, func() {}, nil
}
