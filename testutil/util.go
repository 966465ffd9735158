// Package testutil holds fixtures and fakes shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
)

// Logger is a core.Logger recording everything it is given.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Messages returns the logged messages of the given level.
func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, 0)
	for _, e := range l.Entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

// Face is one face the scripted capability "sees" in a frame.
type Face struct {
	Detection  face.Detection
	Descriptor face.Descriptor
}

// Faces is a face.Capability answering from a script keyed by frame sequence number.
type Faces struct {
	mu        sync.Mutex
	script    map[uint64][]Face
	DetectErr error
	Described int
}

var _ face.Capability = (*Faces)(nil)

func NewFaces() *Faces { return &Faces{script: make(map[uint64][]Face)} }

// On scripts the faces found in the frame with sequence number seq.
func (f *Faces) On(seq uint64, faces ...Face) *Faces {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[seq] = faces
	return f
}

func (f *Faces) Detect(frame face.Frame) ([]face.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DetectErr != nil {
		return nil, f.DetectErr
	}
	dets := make([]face.Detection, 0, len(f.script[frame.Seq]))
	for _, fc := range f.script[frame.Seq] {
		dets = append(dets, fc.Detection)
	}
	return dets, nil
}

func (f *Faces) Describe(frame face.Frame, box face.Box) (face.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.script[frame.Seq] {
		if fc.Detection.Box == box {
			f.Described++
			return fc.Descriptor.Clone(), nil
		}
	}
	return nil, face.ErrFaceNotFound
}

// CenteredFace returns a face of the given size centered in a width x height frame.
func CenteredFace(width, height, faceW, faceH int, confidence float64, desc ...float32) Face {
	return Face{
		Detection: face.Detection{
			Box:        face.Box{X: (width - faceW) / 2, Y: (height - faceH) / 2, W: faceW, H: faceH},
			Confidence: confidence,
		},
		Descriptor: desc,
	}
}

// Camera is a fake enrollment camera handing out frames 1..n of the given size, then repeating the last one.
type Camera struct {
	mu      sync.Mutex
	Width   int
	Height  int
	Frames  int
	seq     uint64
	Opens   int
	Closes  int
	OpenErr error
	GrabErr error
}

func NewCamera(width, height, frames int) *Camera {
	return &Camera{Width: width, Height: height, Frames: frames}
}

func (c *Camera) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.Opens++
	return nil
}

func (c *Camera) Grab(ctx context.Context) (face.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return face.Frame{}, err
	}
	if c.GrabErr != nil {
		return face.Frame{}, c.GrabErr
	}
	if c.Closes > 0 {
		return face.Frame{}, fmt.Errorf("camera closed")
	}
	if c.Frames == 0 || c.seq < uint64(c.Frames) {
		c.seq++
	}
	return face.Frame{Seq: c.seq, Width: c.Width, Height: c.Height, CapturedAt: time.Now().UTC()}, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closes++
	return nil
}

func (c *Camera) Counts() (opens, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Opens, c.Closes
}

// Enroll puts an identity in store or fails the test.
func Enroll(t *testing.T, store *identity.Store, id int64, ref string, desc ...float32) identity.EnrolledIdentity {
	t.Helper()
	idt, err := store.Put(context.Background(), identity.EnrolledIdentity{
		ID:          id,
		ExternalRef: ref,
		DisplayName: "Student " + ref,
		Descriptor:  desc,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return idt
}
