// Package disambig turns an ambiguous entity reference into a numbered
// multiple-choice question and later resolves the user's answer against
// the exact candidate set that was presented.
package disambig

import (
	"sort"
	"time"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/session"
)

// ErrNoPendingSelection is returned when a selection arrives but no
// disambiguation is open in the session.
var ErrNoPendingSelection = fault.New(fault.State, "no selection is pending")

// Manager builds and resolves candidate sets.
type Manager struct {
	maxCandidates int
	now           func() time.Time
}

func NewManager(maxCandidates int) *Manager {
	return &Manager{
		maxCandidates: maxCandidates,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Begin freezes an ordered candidate set for the query. Candidates beyond
// the cap are dropped rather than shown; the user can always narrow the
// query instead. Ordinals are assigned 1-based in presentation order.
func (m *Manager) Begin(query string, candidates []session.Candidate) (*session.Disambiguation, error) {
	if len(candidates) == 0 {
		return nil, fault.New(fault.Validation, "cannot begin a selection with no candidates")
	}
	if m.maxCandidates > 0 && len(candidates) > m.maxCandidates {
		candidates = candidates[:m.maxCandidates]
	}
	out := make([]session.Candidate, len(candidates))
	for i, c := range candidates {
		c.Ordinal = i + 1
		out[i] = c
	}
	return &session.Disambiguation{
		Query:      query,
		Candidates: out,
		CreatedAt:  m.now(),
	}, nil
}

// Resolve maps the user's answer back to candidates. selectAll takes the
// whole set in presentation order; otherwise ordinals are deduplicated
// and resolved in presentation order regardless of how they were typed.
// The disambiguation itself is not mutated; the caller clears it from the
// session once resolution succeeds.
func (m *Manager) Resolve(d *session.Disambiguation, ordinals []int, selectAll bool) ([]session.Candidate, error) {
	if d == nil || len(d.Candidates) == 0 {
		return nil, ErrNoPendingSelection
	}
	if selectAll {
		return append([]session.Candidate(nil), d.Candidates...), nil
	}
	if len(ordinals) == 0 {
		return nil, fault.New(fault.Validation, "selection must name at least one candidate")
	}

	seen := make(map[int]bool, len(ordinals))
	var picked []int
	for _, n := range ordinals {
		if n < 1 || n > len(d.Candidates) {
			return nil, fault.New(fault.Validation,
				"selection %d is out of range 1..%d", n, len(d.Candidates))
		}
		if !seen[n] {
			seen[n] = true
			picked = append(picked, n)
		}
	}
	sort.Ints(picked)

	out := make([]session.Candidate, 0, len(picked))
	for _, n := range picked {
		out = append(out, d.Candidates[n-1])
	}
	return out, nil
}
