// Package bundle groups tracked defects into fix-sized units and derives
// the branch each unit will be proposed on.
package bundle

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/autofix/internal/defect"
)

// Policy is the key function used to partition defects into buckets.
type Policy string

const (
	PolicyComponent Policy = "component"
	PolicyFile      Policy = "file"
	PolicyLabel     Policy = "label"
	PolicyKind      Policy = "kind"
	PolicyPriority  Policy = "priority"
)

// reservedBranchNames must never be used as a proposed branch.
var reservedBranchNames = map[string]bool{
	"main":    true,
	"master":  true,
	"HEAD":    true,
	"develop": true,
}

// Bundle is a grouping unit of defects slated for a single fix pass.
type Bundle struct {
	ID             string
	DisplayName    string
	Policy         Policy
	Value          string
	Defects        []*defect.Defect
	ProposedBranch string
	RelatedFiles   []string
	Components     []string
	Priority       defect.Priority
}

// newBundle derives a bundle's id, proposed branch, and aggregate fields
// from its member defects. The id is built from (policy, value, id range)
// so it is stable across repeated runs over the same defect set.
func newBundle(policy Policy, value string, defects []*defect.Defect, seq int) *Bundle {
	sort.Slice(defects, func(i, j int) bool {
		if defects[i].Context.Priority.Rank() != defects[j].Context.Priority.Rank() {
			return defects[i].Context.Priority.Rank() > defects[j].Context.Priority.Rank()
		}
		return defects[i].ID < defects[j].ID
	})

	minID, maxID := defects[0].ID, defects[0].ID
	fileSet := map[string]bool{}
	componentSet := map[string]bool{}
	topPriority := defects[0].Context.Priority
	for _, d := range defects {
		if d.ID < minID {
			minID = d.ID
		}
		if d.ID > maxID {
			maxID = d.ID
		}
		if d.Context.Priority.Rank() > topPriority.Rank() {
			topPriority = d.Context.Priority
		}
		for _, f := range d.Context.RelatedFiles {
			fileSet[f] = true
		}
		if d.Context.Component != "" {
			componentSet[d.Context.Component] = true
		}
	}

	id := fmt.Sprintf("%s-%s-%d-%d", policy, sanitizeValue(value), minID, maxID)
	branch := proposedBranch(policy, value, minID, maxID, seq)

	return &Bundle{
		ID:             id,
		DisplayName:    fmt.Sprintf("%s: %s (#%d-#%d)", policy, value, minID, maxID),
		Policy:         policy,
		Value:          value,
		Defects:        defects,
		ProposedBranch: branch,
		RelatedFiles:   sortedKeys(fileSet),
		Components:     sortedKeys(componentSet),
		Priority:       topPriority,
	}
}

// proposedBranch deterministically derives a branch name from the
// grouping key, avoiding reserved names by appending a disambiguating
// suffix.
func proposedBranch(policy Policy, value string, minID, maxID, seq int) string {
	base := fmt.Sprintf("fix/%s-%s-%d", policy, sanitizeValue(value), minID)
	if maxID != minID {
		base = fmt.Sprintf("%s-%d", base, maxID)
	}
	name := base
	if reservedBranchNames[name] {
		name = fmt.Sprintf("%s-bundle", base)
	}
	if seq > 0 {
		name = fmt.Sprintf("%s-%d", name, seq)
	}
	return name
}

func sanitizeValue(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "unlabeled"
	}
	return string(out)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
