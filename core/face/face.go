// Package face defines the boundary between the attendance engine and the face detection/description model.
package face

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // register the decoder for FrameFromImage and JPEG
	"math"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrDimensionMismatch = errors.New("descriptors have different lengths")
	ErrEmptyDescriptor   = errors.New("descriptor is empty")
	ErrFaceNotFound      = errors.New("no face found in the given box")
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (b Box) Area() float64 { return float64(b.W) * float64(b.H) }

// Center returns the box center in pixel coordinates.
func (b Box) Center() (float64, float64) {
	return float64(b.X) + float64(b.W)/2, float64(b.Y) + float64(b.H)/2
}

type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Frame is a single still image: a camera grab or an uploaded class photo.
type Frame struct {
	Seq        uint64
	Width      int
	Height     int
	Data       []byte // encoded image (JPEG or PNG)
	CapturedAt time.Time
}

func (f Frame) Area() float64 { return float64(f.Width) * float64(f.Height) }

// FrameFromImage builds a Frame from an encoded image, reading its dimensions from the image header.
func FrameFromImage(seq uint64, data []byte) (Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errors.Wrap(err, "decoding image config")
	}
	return Frame{
		Seq:        seq,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Data:       data,
		CapturedAt: time.Now().UTC(),
	}, nil
}

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// JPEG returns the frame's image as JPEG, re-encoding other formats.
// Models backed by dlib only decode JPEG.
func (f Frame) JPEG() ([]byte, error) {
	if bytes.HasPrefix(f.Data, jpegMagic) {
		return f.Data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding frame")
	}
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, errors.Wrap(err, "encoding frame as jpeg")
	}
	return buf.Bytes(), nil
}

// Descriptor is the fixed-length numeric summary of a face (128 floats for dlib's ResNet model).
type Descriptor []float32

// Valid reports whether d is non-empty and only holds finite values.
func (d Descriptor) Valid() bool {
	if len(d) == 0 {
		return false
	}
	for _, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	c := make(Descriptor, len(d))
	copy(c, d)
	return c
}

// Distance returns the euclidean distance between two descriptors of the same length.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyDescriptor
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

type (
	Detector interface {
		Detect(frame Frame) ([]Detection, error)
	}

	Describer interface {
		Describe(frame Frame, box Box) (Descriptor, error)
	}

	// Capability is the face model consumed by the engine.
	Capability interface {
		Detector
		Describer
	}
)
