package bundle

import (
	"sort"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/defect"
)

// GroupOptions configures a single Grouper.Group call.
type GroupOptions struct {
	Policy        Policy
	MaxBundleSize int // 0 means unbounded
	MinBundleSize int // 0 or 1 means no lower bound
	IncludeLabels []string
	ExcludeLabels []string
}

// Grouper partitions defects into bundles by a chosen policy.
type Grouper struct{}

// NewGrouper constructs a Grouper. It holds no state; the type exists to
// mirror the rest of the codebase's constructor-based component idiom
// and to leave room for future policy plugins.
func NewGrouper() *Grouper {
	return &Grouper{}
}

// Group partitions defects into bundles per opts. An empty defect list
// returns an empty result, not an error; an unknown policy returns
// INVALID_ARG. The residue return carries defects dropped because their
// bucket fell below MinBundleSize, for observability.
func (g *Grouper) Group(defects []*defect.Defect, opts GroupOptions) (bundles []*Bundle, residue []*defect.Defect, err error) {
	if len(defects) == 0 {
		return nil, nil, nil
	}
	switch opts.Policy {
	case PolicyComponent, PolicyFile, PolicyLabel, PolicyKind, PolicyPriority:
	default:
		return nil, nil, autofixerr.New(autofixerr.KindInvalidArg, "unknown grouping policy: "+string(opts.Policy))
	}

	filtered := filterByLabels(defects, opts.IncludeLabels, opts.ExcludeLabels)

	buckets, order := bucketize(filtered, opts.Policy)

	minSize := opts.MinBundleSize
	if minSize < 1 {
		minSize = 1
	}

	seq := 0
	for _, key := range order {
		members := buckets[key]
		if len(members) < minSize {
			residue = append(residue, members...)
			continue
		}
		chunks := chunk(members, opts.MaxBundleSize)
		for _, c := range chunks {
			if len(c) < minSize {
				residue = append(residue, c...)
				continue
			}
			bundles = append(bundles, newBundle(opts.Policy, key, c, seq))
			seq++
		}
	}

	sort.SliceStable(bundles, func(i, j int) bool {
		if bundles[i].Priority.Rank() != bundles[j].Priority.Rank() {
			return bundles[i].Priority.Rank() > bundles[j].Priority.Rank()
		}
		return bundles[i].ID < bundles[j].ID
	})

	return bundles, residue, nil
}

// filterByLabels keeps defects that carry every include label and none
// of the exclude labels.
func filterByLabels(defects []*defect.Defect, include, exclude []string) []*defect.Defect {
	if len(include) == 0 && len(exclude) == 0 {
		return defects
	}
	out := make([]*defect.Defect, 0, len(defects))
	for _, d := range defects {
		if len(include) > 0 && !d.HasAllLabels(include) {
			continue
		}
		if len(exclude) > 0 && d.HasAnyLabel(exclude) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// bucketize partitions defects by the policy's key function. order
// lists the keys sorted alphabetically so output is deterministic.
func bucketize(defects []*defect.Defect, policy Policy) (buckets map[string][]*defect.Defect, order []string) {
	buckets = make(map[string][]*defect.Defect)
	seen := make(map[string]bool)
	add := func(key string, d *defect.Defect) {
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], d)
	}

	for _, d := range defects {
		switch policy {
		case PolicyComponent:
			add(d.Context.Component, d)
		case PolicyKind:
			add(string(d.Kind), d)
		case PolicyPriority:
			add(string(d.Context.Priority), d)
		case PolicyFile:
			if len(d.Context.RelatedFiles) == 0 {
				add("", d)
				continue
			}
			for _, f := range d.Context.RelatedFiles {
				add(f, d)
			}
		case PolicyLabel:
			if len(d.Labels) == 0 {
				add("", d)
				continue
			}
			for _, l := range d.Labels {
				add(l, d)
			}
		}
	}
	sort.Strings(order)
	return buckets, order
}

// chunk splits members into groups of at most size (0 means unbounded,
// returning a single chunk).
func chunk(members []*defect.Defect, size int) [][]*defect.Defect {
	if size <= 0 || len(members) <= size {
		return [][]*defect.Defect{members}
	}
	var out [][]*defect.Defect
	for len(members) > 0 {
		n := size
		if n > len(members) {
			n = len(members)
		}
		out = append(out, members[:n])
		members = members[n:]
	}
	return out
}
