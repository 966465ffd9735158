package attendance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/matching"
)

var ErrNoFaceCapability = errors.New("face recognition is not available on this device")

type (
	IdentitySource interface {
		All(ctx context.Context) ([]identity.EnrolledIdentity, error)
		FindByID(ctx context.Context, id int64) (identity.EnrolledIdentity, error)
	}

	// Notifier is told about every newly marked (or re-marked with a new status) record.
	// Implementations must not block.
	Notifier interface {
		Notify(idt identity.EnrolledIdentity, rec Record)
	}

	ServiceDeps struct {
		Ledger     *Ledger
		Identities IdentitySource
		Faces      face.Capability // optional: only needed by MarkFromFrame
		Matcher    *matching.Matcher
		Notifier   Notifier // optional
		Logger     core.Logger
	}

	Service struct {
		ledger     *Ledger
		identities IdentitySource
		faces      face.Capability
		matcher    *matching.Matcher
		notifier   Notifier
		logger     core.Logger
	}

	// FrameReport describes what MarkFromFrame saw and wrote.
	FrameReport struct {
		Faces      int
		Matches    []matching.Result
		Unknown    int     // faces that matched nobody
		Unrostered []int64 // recognized subjects that are not on the roster (not marked)
		Changes    []Change
	}
)

func NewService(deps ServiceDeps) *Service {
	matcher := deps.Matcher
	if matcher == nil {
		matcher = matching.NewMatcher(matching.DefaultThreshold)
	}
	return &Service{
		ledger:     deps.Ledger,
		identities: deps.Identities,
		faces:      deps.Faces,
		matcher:    matcher,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
	}
}

// MarkFromFrame recognizes the faces of a class photo and marks them present for courseID on date.
// When a roster is given, only roster subjects are marked and those not recognized are marked absent.
func (svc *Service) MarkFromFrame(ctx context.Context, frame face.Frame, courseID int64, date Date, roster []int64) (FrameReport, error) {
	var report FrameReport
	if svc.faces == nil {
		return report, ErrNoFaceCapability
	}

	dets, err := svc.faces.Detect(frame)
	if err != nil {
		return report, errors.Wrap(err, "detecting faces")
	}
	report.Faces = len(dets)

	probes := make([]face.Descriptor, 0, len(dets))
	for _, det := range dets {
		desc, err := svc.faces.Describe(frame, det.Box)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("describing face %+v: %v", det.Box, err), err)
			report.Unknown++
			continue
		}
		probes = append(probes, desc)
	}

	candidates, err := svc.identities.All(ctx)
	if err != nil {
		return report, errors.Wrap(err, "loading enrolled identities")
	}

	inRoster := make(map[int64]bool, len(roster))
	for _, id := range roster {
		inRoster[id] = true
	}

	present := make(map[int64]bool)
	byID := make(map[int64]identity.EnrolledIdentity, len(candidates))
	marks := make([]Mark, 0, len(probes)+len(roster))
	for _, asg := range svc.matcher.MatchAll(probes, candidates) {
		if !asg.Matched {
			report.Unknown++
			continue
		}
		idt := asg.Result.Identity
		report.Matches = append(report.Matches, asg.Result)
		byID[idt.ID] = idt
		if len(roster) > 0 && !inRoster[idt.ID] {
			report.Unrostered = append(report.Unrostered, idt.ID)
			continue
		}
		present[idt.ID] = true
		marks = append(marks, Mark{SubjectID: idt.ID, CourseID: courseID, Date: date, Status: StatusPresent})
	}
	for _, id := range roster {
		if !present[id] {
			marks = append(marks, Mark{SubjectID: id, CourseID: courseID, Date: date, Status: StatusAbsent})
		}
	}
	if len(marks) == 0 {
		return report, nil
	}

	changes, err := svc.ledger.MarkMany(ctx, marks)
	if err != nil {
		return report, err
	}
	report.Changes = changes
	svc.notify(ctx, changes, byID)
	return report, nil
}

// MarkMany records marks entered by hand (overrides, late arrivals...).
func (svc *Service) MarkMany(ctx context.Context, marks ...Mark) ([]Change, error) {
	changes, err := svc.ledger.MarkMany(ctx, marks)
	if err != nil {
		return nil, err
	}
	svc.notify(ctx, changes, nil)
	return changes, nil
}

// Override sets a single subject's status.
func (svc *Service) Override(ctx context.Context, subjectID, courseID int64, date Date, status Status) (Change, error) {
	changes, err := svc.MarkMany(ctx, Mark{SubjectID: subjectID, CourseID: courseID, Date: date, Status: status})
	if err != nil {
		return Change{}, err
	}
	return changes[0], nil
}

// Summary returns the per-subject attendance of a course between from and to (inclusive, optional).
func (svc *Service) Summary(ctx context.Context, courseID int64, from, to Date) ([]SubjectSummary, error) {
	recs, err := svc.ledger.Query(ctx, Filter{CourseID: courseID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return Summarize(recs), nil
}

func (svc *Service) notify(ctx context.Context, changes []Change, known map[int64]identity.EnrolledIdentity) {
	if svc.notifier == nil {
		return
	}
	for _, ch := range changes {
		if !ch.Changed() {
			continue
		}
		idt, ok := known[ch.Record.SubjectID]
		if !ok {
			var err error
			if idt, err = svc.identities.FindByID(ctx, ch.Record.SubjectID); err != nil {
				if errors.Cause(err) != identity.ErrNotFound {
					svc.logger.Warn(fmt.Sprintf("loading identity %d for notification: %v", ch.Record.SubjectID, err), err)
				}
				continue
			}
		}
		svc.notifier.Notify(idt, ch.Record)
	}
}
