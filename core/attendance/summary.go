package attendance

import (
	"math"
	"sort"
)

// Summarize aggregates records per subject. Late arrivals count as attended.
func Summarize(records []Record) []SubjectSummary {
	bySubject := make(map[int64]*SubjectSummary)
	for _, rec := range records {
		sum, ok := bySubject[rec.SubjectID]
		if !ok {
			sum = &SubjectSummary{SubjectID: rec.SubjectID}
			bySubject[rec.SubjectID] = sum
		}
		sum.Total++
		switch rec.Status {
		case StatusPresent:
			sum.Present++
		case StatusLate:
			sum.Late++
		case StatusAbsent:
			sum.Absent++
		}
	}

	out := make([]SubjectSummary, 0, len(bySubject))
	for _, sum := range bySubject {
		if sum.Total > 0 {
			pct := float64(sum.Present+sum.Late) / float64(sum.Total) * 100
			sum.Percentage = math.Round(pct*100) / 100
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}
