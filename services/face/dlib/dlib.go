//go:build dlib

// Package dlib implements face.Capability with dlib's HOG detector and ResNet descriptor (via go-face).
// Building it requires the dlib headers and libraries, hence the build tag.
package dlib

import (
	"sync"
	"time"

	goface "github.com/Kagami/go-face"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/face"
)

// frameKey identifies a frame across the Detect and Describe calls made for it.
type frameKey struct {
	seq  uint64
	at   time.Time
	size int
}

// Recognizer runs dlib once per frame: Detect computes every descriptor of the frame
// and Describe answers from that result.
type Recognizer struct {
	mu     sync.Mutex
	rec    *goface.Recognizer
	last   frameKey
	faces  []goface.Face
	cached bool
}

var _ face.Capability = (*Recognizer)(nil)

// NewRecognizer loads the models from dir (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat).
func NewRecognizer(dir string) (*Recognizer, error) {
	rec, err := goface.NewRecognizer(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "loading face models from %s", dir)
	}
	return &Recognizer{rec: rec}, nil
}

func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
}

func (r *Recognizer) Detect(frame face.Frame) ([]face.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	faces, err := r.recognize(frame)
	if err != nil {
		return nil, err
	}
	dets := make([]face.Detection, 0, len(faces))
	for _, f := range faces {
		// the HOG detector does not score its detections
		dets = append(dets, face.Detection{Box: toBox(f), Confidence: 1})
	}
	return dets, nil
}

func (r *Recognizer) Describe(frame face.Frame, box face.Box) (face.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	faces, err := r.recognize(frame)
	if err != nil {
		return nil, err
	}
	for _, f := range faces {
		if toBox(f) == box {
			desc := make(face.Descriptor, len(f.Descriptor))
			copy(desc, f.Descriptor[:])
			return desc, nil
		}
	}
	return nil, face.ErrFaceNotFound
}

func (r *Recognizer) recognize(frame face.Frame) ([]goface.Face, error) {
	if r.rec == nil {
		return nil, errors.New("face recognizer is closed")
	}
	key := frameKey{seq: frame.Seq, at: frame.CapturedAt, size: len(frame.Data)}
	if r.cached && r.last == key {
		return r.faces, nil
	}

	data, err := frame.JPEG()
	if err != nil {
		return nil, err
	}
	faces, err := r.rec.Recognize(data)
	if err != nil {
		return nil, errors.Wrap(err, "recognizing faces")
	}
	r.last, r.faces, r.cached = key, faces, true
	return faces, nil
}

func toBox(f goface.Face) face.Box {
	rect := f.Rectangle
	return face.Box{X: rect.Min.X, Y: rect.Min.Y, W: rect.Dx(), H: rect.Dy()}
}
