// Package defect models the tracked defects consumed from external
// services and the per-session lookup used to resolve cyclic
// parent/child references by id.
package defect

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a defect.
type State string

const (
	StateOpen       State = "open"
	StateInProgress State = "in-progress"
	StateResolved   State = "resolved"
	StateClosed     State = "closed"
)

// Kind categorizes the nature of the work a defect represents.
type Kind string

const (
	KindBug      Kind = "bug"
	KindFeature  Kind = "feature"
	KindRefactor Kind = "refactor"
	KindDocs     Kind = "docs"
	KindTest     Kind = "test"
	KindChore    Kind = "chore"
)

// Priority is the urgency of a defect.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank gives priority a total order for sorting (desc = most urgent first).
var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Rank returns the priority's sort weight; higher is more urgent.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Origin names where a defect was sourced from.
type Origin string

const (
	OriginTracker          Origin = "tracker"
	OriginExceptionTracker Origin = "exception-tracker"
	OriginManual           Origin = "manual"
	OriginHost             Origin = "host"
)

// Context carries the triage metadata attached to a defect.
type Context struct {
	Component      string
	Priority       Priority
	RelatedFiles   []string
	RelatedSymbols []string
	Origin         Origin
}

// Defect is a trackable problem report.
type Defect struct {
	ID        int
	Title     string
	Body      string
	State     State
	Kind      Kind
	Labels    []string
	Context   Context
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string

	// AcceptanceCriteria lists the checklist items a fix must satisfy,
	// rendered as checkboxes in a generated change proposal body.
	AcceptanceCriteria []string
}

// Validate enforces the defect's data-model invariants: state and kind
// must be set.
func (d *Defect) Validate() error {
	if d.State == "" {
		return fmt.Errorf("defect %d: state must not be empty", d.ID)
	}
	if d.Kind == "" {
		return fmt.Errorf("defect %d: kind must not be empty", d.ID)
	}
	return nil
}

// HasLabel reports whether the defect carries the given label.
func (d *Defect) HasLabel(label string) bool {
	for _, l := range d.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// HasAllLabels reports whether the defect carries every given label.
func (d *Defect) HasAllLabels(labels []string) bool {
	for _, l := range labels {
		if !d.HasLabel(l) {
			return false
		}
	}
	return true
}

// HasAnyLabel reports whether the defect carries any of the given labels.
func (d *Defect) HasAnyLabel(labels []string) bool {
	for _, l := range labels {
		if d.HasLabel(l) {
			return true
		}
	}
	return false
}

// Index resolves defects by id, owned by the session. Cyclic parent/child
// defect references are stored by id only and resolved through this
// lookup rather than embedding pointers.
type Index struct {
	byID map[int]*Defect
}

// NewIndex builds a lookup index over the given defects. Duplicate ids
// are rejected to preserve the "id unique within a session" invariant.
func NewIndex(defects []*Defect) (*Index, error) {
	idx := &Index{byID: make(map[int]*Defect, len(defects))}
	for _, d := range defects {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := idx.byID[d.ID]; exists {
			return nil, fmt.Errorf("duplicate defect id %d", d.ID)
		}
		idx.byID[d.ID] = d
	}
	return idx, nil
}

// Get resolves a defect by id.
func (idx *Index) Get(id int) (*Defect, bool) {
	d, ok := idx.byID[id]
	return d, ok
}

// All returns every defect in the index, order unspecified.
func (idx *Index) All() []*Defect {
	out := make([]*Defect, 0, len(idx.byID))
	for _, d := range idx.byID {
		out = append(out, d)
	}
	return out
}

// Len returns the number of defects in the index.
func (idx *Index) Len() int {
	return len(idx.byID)
}
