package enrollment

import (
	"math"

	"github.com/trezcool/hazira/core/face"
)

type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonNoFace            Reason = "no_face"
	ReasonMultipleFaces     Reason = "multiple_faces"
	ReasonTooSmall          Reason = "too_small"
	ReasonTooLarge          Reason = "too_large"
	ReasonOffCenter         Reason = "off_center"
	ReasonUnreadable        Reason = "unreadable_frame"
	ReasonCameraUnavailable Reason = "camera_unavailable"
)

var guidance = map[Reason]string{
	ReasonOK:                "Hold still...",
	ReasonNoFace:            "No face detected. Please position your face in the frame.",
	ReasonMultipleFaces:     "Multiple faces detected. Only one person should be in frame.",
	ReasonTooSmall:          "Face too small. Please move closer to the camera.",
	ReasonTooLarge:          "Face too close. Please move back from the camera.",
	ReasonOffCenter:         "Please center your face in the frame.",
	ReasonUnreadable:        "Could not read the camera image. Please hold on.",
	ReasonCameraUnavailable: "The camera is not available. Check that it is connected and not in use.",
}

// Guidance returns the text shown to the subject for r.
func (r Reason) Guidance() string {
	if g, ok := guidance[r]; ok {
		return g
	}
	return string(r)
}

type Options struct {
	CountdownTicks int
	MaxAttempts    int

	// face area / frame area bounds
	MinFaceRatio   float64
	MaxFaceRatio   float64
	IdealFaceRatio float64
	// max distance between the face and frame centers, as a fraction of the frame width/height
	MaxCenterOffset float64

	SizeWeight       float64
	ConfidenceWeight float64
	GoodEnough       float64 // a candidate scoring at least this is committed right away
}

func DefaultOptions() Options {
	return Options{
		CountdownTicks:   3,
		MaxAttempts:      20,
		MinFaceRatio:     0.04,
		MaxFaceRatio:     0.5,
		IdealFaceRatio:   0.15,
		MaxCenterOffset:  0.2,
		SizeWeight:       0.5,
		ConfidenceWeight: 0.5,
		GoodEnough:       0.8,
	}
}

// withDefaults fills the unset (zero) options from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CountdownTicks < 0 {
		o.CountdownTicks = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.MinFaceRatio <= 0 {
		o.MinFaceRatio = d.MinFaceRatio
	}
	if o.MaxFaceRatio <= 0 {
		o.MaxFaceRatio = d.MaxFaceRatio
	}
	if o.IdealFaceRatio <= 0 {
		o.IdealFaceRatio = d.IdealFaceRatio
	}
	if o.MaxCenterOffset <= 0 {
		o.MaxCenterOffset = d.MaxCenterOffset
	}
	if o.SizeWeight <= 0 && o.ConfidenceWeight <= 0 {
		o.SizeWeight, o.ConfidenceWeight = d.SizeWeight, d.ConfidenceWeight
	}
	if o.GoodEnough <= 0 {
		o.GoodEnough = d.GoodEnough
	}
	return o
}

// Assessment is the verdict of the quality gate on one frame.
type Assessment struct {
	Reason    Reason
	Detection face.Detection
	Ratio     float64 // face area / frame area
	Score     float64 // only set when Reason is ReasonOK
}

func (a Assessment) OK() bool { return a.Reason == ReasonOK }

// Assess applies the quality gate to the detections of frame.
func Assess(frame face.Frame, dets []face.Detection, opts Options) Assessment {
	switch len(dets) {
	case 0:
		return Assessment{Reason: ReasonNoFace}
	case 1:
	default:
		return Assessment{Reason: ReasonMultipleFaces}
	}

	det := dets[0]
	a := Assessment{Detection: det}
	if area := frame.Area(); area > 0 {
		a.Ratio = det.Box.Area() / area
	}
	switch {
	case a.Ratio < opts.MinFaceRatio:
		a.Reason = ReasonTooSmall
		return a
	case a.Ratio > opts.MaxFaceRatio:
		a.Reason = ReasonTooLarge
		return a
	}

	cx, cy := det.Box.Center()
	dx := math.Abs(cx-float64(frame.Width)/2) / float64(frame.Width)
	dy := math.Abs(cy-float64(frame.Height)/2) / float64(frame.Height)
	if dx > opts.MaxCenterOffset || dy > opts.MaxCenterOffset {
		a.Reason = ReasonOffCenter
		return a
	}

	a.Reason = ReasonOK
	a.Score = opts.SizeWeight*math.Min(a.Ratio/opts.IdealFaceRatio, 1) +
		opts.ConfidenceWeight*math.Max(0, math.Min(det.Confidence, 1))
	return a
}
