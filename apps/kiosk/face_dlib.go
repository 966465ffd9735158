//go:build dlib

package main

import (
	"fmt"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/services/face/dlib"
)

func loadFaces(conf *core.Config, logger core.Logger) (face.Capability, func(), error) {
	rec, err := dlib.NewRecognizer(conf.Face.ModelsDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("face models loaded from %s", conf.Face.ModelsDir))
	return rec, rec.Close, nil
}
