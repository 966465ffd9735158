// Package matching finds which enrolled identity a face descriptor belongs to.
package matching

import (
	"sort"

	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
)

// DefaultThreshold is the euclidean distance under which two dlib descriptors are considered the same person.
const DefaultThreshold = 0.6

type (
	Result struct {
		Identity identity.EnrolledIdentity
		Distance float64
	}

	// Assignment is the outcome of matching one probe of a frame.
	Assignment struct {
		Probe   int // index of the probe descriptor
		Result  Result
		Matched bool
	}

	Matcher struct {
		Threshold float64
	}
)

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Match returns the candidate nearest to probe if its distance is strictly below the threshold.
// On equal distances the earliest candidate wins, so callers get deterministic results by passing
// candidates in a stable order (identity.Store.All orders by ExternalRef).
// Candidates whose descriptor cannot be compared with probe are skipped.
func (m *Matcher) Match(probe face.Descriptor, candidates []identity.EnrolledIdentity) (Result, bool) {
	best, ok := nearest(probe, candidates)
	if !ok || best.Distance >= m.Threshold {
		return Result{}, false
	}
	return best, true
}

// MatchAll matches every probe of a single frame.
// An identity is assigned to at most one probe: when several probes fall under the threshold for the
// same identity, the closest probe keeps it and the others are matched against the remaining identities.
func (m *Matcher) MatchAll(probes []face.Descriptor, candidates []identity.EnrolledIdentity) []Assignment {
	type pair struct {
		probe, cand int
		dist        float64
	}

	pairs := make([]pair, 0, len(probes)*len(candidates))
	for p, probe := range probes {
		for c, cand := range candidates {
			dist, err := face.Distance(probe, cand.Descriptor)
			if err != nil || dist >= m.Threshold {
				continue
			}
			pairs = append(pairs, pair{probe: p, cand: c, dist: dist})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	out := make([]Assignment, len(probes))
	for p := range out {
		out[p].Probe = p
	}
	usedCands := make(map[int]bool, len(candidates))
	for _, pr := range pairs {
		if out[pr.probe].Matched || usedCands[pr.cand] {
			continue
		}
		out[pr.probe].Matched = true
		out[pr.probe].Result = Result{Identity: candidates[pr.cand], Distance: pr.dist}
		usedCands[pr.cand] = true
	}
	return out
}

func nearest(probe face.Descriptor, candidates []identity.EnrolledIdentity) (Result, bool) {
	var (
		best  Result
		found bool
	)
	for _, cand := range candidates {
		dist, err := face.Distance(probe, cand.Descriptor)
		if err != nil {
			continue
		}
		if !found || dist < best.Distance {
			best = Result{Identity: cand, Distance: dist}
			found = true
		}
	}
	return best, found
}
