package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
)

type State int

const (
	Idle State = iota
	Priming
	Countdown
	Sampling
	QualityCheck
	Committed
	Failed
	Cancelled
)

var stateNames = [...]string{"idle", "priming", "countdown", "sampling", "quality_check", "committed", "failed", "cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) Terminal() bool { return s >= Committed }

type (
	// Camera is the live video source. A session owns it exclusively between Open and Close.
	Camera interface {
		Open(ctx context.Context) error
		Grab(ctx context.Context) (face.Frame, error)
		Close() error
	}

	IdentityWriter interface {
		Put(ctx context.Context, idt identity.EnrolledIdentity) (identity.EnrolledIdentity, error)
	}

	Params struct {
		SubjectID     int64
		ExternalRef   string
		DisplayName   string
		NotifyAddress string
	}

	Status struct {
		State     State
		Countdown int // ticks left, in Countdown
		Attempts  int
		Reason    Reason // verdict on the last sampled frame
		BestScore float64
	}

	candidate struct {
		descriptor face.Descriptor
		score      float64
	}

	// Session drives the enrollment of one subject: it samples the camera,
	// keeps the best frame passing the quality gate and commits its descriptor.
	Session struct {
		camera Camera
		faces  face.Capability
		store  IdentityWriter
		opts   Options
		params Params

		stepMu sync.Mutex // one Step at a time

		mu        sync.Mutex
		state     State
		countdown int
		attempts  int
		last      Reason
		best      *candidate
		result    identity.EnrolledIdentity
		err       error
		acquired  bool
		released  bool
	}
)

// Guidance is the text to show the subject for the current status.
func (st Status) Guidance() string {
	switch st.State {
	case Idle, Priming:
		return "Starting camera..."
	case Countdown:
		return "Get ready..."
	case Committed:
		return "Face enrolled successfully."
	case Cancelled:
		return "Enrollment cancelled."
	}
	if st.Reason == "" {
		return ReasonOK.Guidance()
	}
	return st.Reason.Guidance()
}

func NewSession(cam Camera, faces face.Capability, store IdentityWriter, params Params, opts Options) (*Session, error) {
	params.ExternalRef = core.CleanString(params.ExternalRef)
	if params.ExternalRef == "" {
		return nil, core.NewValidationError(identity.ErrMissingRef, core.FieldError{Field: "externalRef", Error: identity.ErrMissingRef.Error()})
	}
	if !core.ValidID(params.SubjectID) {
		return nil, core.NewValidationError(identity.ErrInvalidID, core.FieldError{Field: "id", Error: identity.ErrInvalidID.Error()})
	}
	params.NotifyAddress = core.CleanString(params.NotifyAddress)
	if params.NotifyAddress != "" && !core.ValidNotifyAddress(params.NotifyAddress) {
		return nil, core.NewValidationError(identity.ErrInvalidNotify, core.FieldError{Field: "notifyAddress", Error: identity.ErrInvalidNotify.Error()})
	}
	return &Session{
		camera: cam,
		faces:  faces,
		store:  store,
		opts:   opts.withDefaults(),
		params: params,
	}, nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Session) status() Status {
	st := Status{State: s.state, Countdown: s.countdown, Attempts: s.attempts, Reason: s.last}
	if s.best != nil {
		st.BestScore = s.best.score
	}
	return st
}

// Result returns the committed identity, or the error the session ended with.
func (s *Session) Result() (identity.EnrolledIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Committed:
		return s.result, nil
	case Failed:
		return identity.EnrolledIdentity{}, s.err
	case Cancelled:
		return identity.EnrolledIdentity{}, ErrCancelled
	}
	return identity.EnrolledIdentity{}, ErrInProgress
}

// Cancel stops the session and releases the camera. It returns false if the session had already ended.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = Cancelled
	s.release()
	return true
}

// release closes the camera if it was acquired and not closed yet. s.mu must be held.
func (s *Session) release() {
	if !s.acquired || s.released {
		return
	}
	s.released = true
	_ = s.camera.Close()
}

// fail ends the session with err. s.mu must be held.
func (s *Session) fail(err error) {
	s.state = Failed
	s.err = err
	s.release()
}

// Step advances the state machine by one tick.
// Stepping a session that has ended returns ErrSessionClosed.
func (s *Session) Step(ctx context.Context) (Status, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return s.acquire(ctx)

	case Priming:
		s.countdown = s.opts.CountdownTicks
		s.state = Countdown
		if s.countdown == 0 {
			s.state = Sampling
		}

	case Countdown:
		s.countdown--
		if s.countdown <= 0 {
			s.countdown = 0
			s.state = Sampling
		}

	case Sampling, QualityCheck:
		s.mu.Unlock()
		return s.sample(ctx)

	default:
		st := s.status()
		s.mu.Unlock()
		return st, ErrSessionClosed
	}
	st := s.status()
	s.mu.Unlock()
	return st, nil
}

func (s *Session) acquire(ctx context.Context) (Status, error) {
	err := s.camera.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.state != Cancelled {
			s.last = ReasonCameraUnavailable
			s.fail(&CaptureError{Reason: ReasonCameraUnavailable, Err: err})
		}
		return s.status(), s.err
	}

	s.acquired = true
	if s.state == Cancelled {
		s.release()
		return s.status(), ErrSessionClosed
	}
	s.state = Priming
	return s.status(), nil
}

func (s *Session) sample(ctx context.Context) (Status, error) {
	a, desc, err := s.grab(ctx)
	if err != nil && ctx.Err() != nil {
		return s.Status(), ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Cancelled {
		return s.status(), ErrSessionClosed
	}

	s.attempts++
	s.state = QualityCheck
	s.last = a.Reason
	if err == nil && a.OK() && (s.best == nil || a.Score > s.best.score) {
		s.best = &candidate{descriptor: desc, score: a.Score}
	}

	switch {
	case s.best != nil && s.best.score >= s.opts.GoodEnough:
		return s.commit(ctx)
	case s.attempts < s.opts.MaxAttempts:
		return s.status(), nil
	case s.best != nil:
		return s.commit(ctx)
	}
	s.fail(&CaptureError{Reason: s.last, Attempts: s.attempts})
	return s.status(), s.err
}

// grab reads one frame and runs it through the quality gate, describing the face of a passing frame.
func (s *Session) grab(ctx context.Context) (Assessment, face.Descriptor, error) {
	frame, err := s.camera.Grab(ctx)
	if err != nil {
		return Assessment{Reason: ReasonUnreadable}, nil, errors.Wrap(err, "grabbing frame")
	}
	dets, err := s.faces.Detect(frame)
	if err != nil {
		return Assessment{Reason: ReasonUnreadable}, nil, errors.Wrap(err, "detecting faces")
	}
	a := Assess(frame, dets, s.opts)
	if !a.OK() {
		return a, nil, nil
	}
	desc, err := s.faces.Describe(frame, a.Detection.Box)
	if err != nil || !desc.Valid() {
		return Assessment{Reason: ReasonUnreadable}, nil, errors.Wrap(err, "describing face")
	}
	return a, desc, nil
}

// commit writes the best candidate. The camera is released first. s.mu must be held.
func (s *Session) commit(ctx context.Context) (Status, error) {
	s.release()
	saved, err := s.store.Put(ctx, identity.EnrolledIdentity{
		ID:            s.params.SubjectID,
		ExternalRef:   s.params.ExternalRef,
		DisplayName:   s.params.DisplayName,
		Descriptor:    s.best.descriptor,
		NotifyAddress: s.params.NotifyAddress,
	})
	if err != nil {
		s.fail(errors.Wrap(err, "saving enrolled identity"))
		return s.status(), s.err
	}
	s.state = Committed
	s.result = saved
	return s.status(), nil
}

// Run steps the session every interval until it ends, reporting every status to onStatus (optional).
// Cancelling ctx cancels the session.
func (s *Session) Run(ctx context.Context, interval time.Duration, onStatus func(Status)) (identity.EnrolledIdentity, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := s.Step(ctx)
		if onStatus != nil {
			onStatus(st)
		}
		if st.State.Terminal() {
			return s.Result()
		}
		if err != nil && ctx.Err() == nil {
			return identity.EnrolledIdentity{}, err
		}

		select {
		case <-ctx.Done():
			s.Cancel()
			return identity.EnrolledIdentity{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
