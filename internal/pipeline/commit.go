package pipeline

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/autofix/internal/defect"
)

// conventionalType maps a defect kind to its conventional-commit type.
var conventionalType = map[defect.Kind]string{
	defect.KindBug:      "fix",
	defect.KindFeature:  "feat",
	defect.KindRefactor: "refactor",
	defect.KindDocs:     "docs",
	defect.KindTest:     "test",
	defect.KindChore:    "chore",
}

const maxSubjectLen = 72

// CommitMessage builds a conventional-commit message for a fixed
// bundle: header "type(scope): subject", a body listing changed files
// and issue ids, and a "Fixes #N, #M" footer.
func CommitMessage(b *bundleDefects, filesChanged []string) string {
	commitType := mostCommonType(b.defects)
	scope := deriveScope(b.components, filesChanged)
	subject := truncateSubject(b.displayName)

	header := fmt.Sprintf("%s(%s): %s", commitType, scope, subject)

	var body strings.Builder
	if len(filesChanged) > 0 {
		body.WriteString("Files changed:\n")
		for _, f := range filesChanged {
			fmt.Fprintf(&body, "- %s\n", f)
		}
	}
	if len(b.defects) > 0 {
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString("Issues:\n")
		for _, d := range b.defects {
			fmt.Fprintf(&body, "- #%d %s\n", d.ID, d.Title)
		}
	}

	footer := footerFixes(b.defects)

	parts := []string{header}
	if body.Len() > 0 {
		parts = append(parts, strings.TrimRight(body.String(), "\n"))
	}
	if footer != "" {
		parts = append(parts, footer)
	}
	return strings.Join(parts, "\n\n")
}

// bundleDefects is the minimal view of a bundle commit-message
// generation needs, kept separate from *bundle.Bundle so this package
// does not need to import bundle for field access beyond what it uses.
type bundleDefects struct {
	displayName string
	components  []string
	defects     []*defect.Defect
}

func mostCommonType(defects []*defect.Defect) string {
	counts := make(map[defect.Kind]int)
	for _, d := range defects {
		counts[d.Kind]++
	}
	best := defect.KindChore
	bestCount := -1
	// Iterate in a fixed order so ties resolve deterministically.
	for _, k := range []defect.Kind{defect.KindBug, defect.KindFeature, defect.KindRefactor, defect.KindDocs, defect.KindTest, defect.KindChore} {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	if t, ok := conventionalType[best]; ok {
		return t
	}
	return "chore"
}

func deriveScope(components []string, filesChanged []string) string {
	if len(components) == 1 {
		return components[0]
	}
	if len(components) > 1 {
		return "multiple"
	}
	if len(filesChanged) > 0 {
		dirs := map[string]bool{}
		for _, f := range filesChanged {
			dirs[path.Dir(f)] = true
		}
		if len(dirs) == 1 {
			for d := range dirs {
				return firstSegment(d)
			}
		}
	}
	if len(filesChanged) > 0 {
		return firstSegment(path.Dir(filesChanged[0]))
	}
	return "general"
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "./")
	segs := strings.Split(p, "/")
	if len(segs) == 0 || segs[0] == "." || segs[0] == "" {
		return "general"
	}
	return segs[0]
}

func truncateSubject(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxSubjectLen {
		return s
	}
	return strings.TrimSpace(string(r[:maxSubjectLen-1])) + "…"
}

// footerPattern matches the "Fixes #N, #M, ..." footer footerFixes
// produces.
var footerPattern = regexp.MustCompile(`^Fixes #\d+(, #\d+)*$`)

// ValidateCommitMessage checks the commit-message-law invariant (spec
// §8): ValidateCommitMessage(CommitMessage(...)) is always true. It
// verifies the header has shape "type(scope): subject" with a
// conventional type and a subject within maxSubjectLen runes (runes,
// not bytes — truncateSubject trims on rune boundaries so a multibyte
// "…" never lands mid-rune), and that a present footer matches "Fixes
// #N, #M, ...".
func ValidateCommitMessage(msg string) bool {
	if msg == "" {
		return false
	}
	sections := strings.Split(msg, "\n\n")
	header := sections[0]

	open := strings.Index(header, "(")
	closeParen := strings.Index(header, "): ")
	if open <= 0 || closeParen <= open {
		return false
	}

	if !isConventionalType(header[:open]) {
		return false
	}
	if header[open+1:closeParen] == "" {
		return false
	}

	subject := header[closeParen+3:]
	if subject == "" || utf8.RuneCountInString(subject) > maxSubjectLen {
		return false
	}

	footer := sections[len(sections)-1]
	if strings.HasPrefix(footer, "Fixes ") && !footerPattern.MatchString(footer) {
		return false
	}
	return true
}

func isConventionalType(t string) bool {
	for _, v := range conventionalType {
		if v == t {
			return true
		}
	}
	return false
}

func footerFixes(defects []*defect.Defect) string {
	if len(defects) == 0 {
		return ""
	}
	ids := make([]int, 0, len(defects))
	for _, d := range defects {
		ids = append(ids, d.ID)
	}
	sort.Ints(ids)
	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = fmt.Sprintf("#%d", id)
	}
	return "Fixes " + strings.Join(refs, ", ")
}
