// Package rewrite writes assigned test-case, suite and plan identifiers back
// into the lines of a feature file.
package rewrite

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mesh-intelligence/gherkinsync/internal/tags"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Feature is the feature-level input of a rewrite: the feature keyword
// line and the plan/suite tags found before any mutation.
type Feature struct {
	// Line is the 1-based line of the Feature keyword.
	Line int
	Refs tags.FeatureRefs
}

// group is the set of candidates sharing one reference tag line.
type group struct {
	line      int
	firstLine int
	exists    bool
	ids       []int
}

// Apply returns a copy of lines with the candidates' identifiers written
// into their tag lines, followed by the suite and plan reference tags.
//
// Test-case groups are applied in descending line order so that an
// insertion never shifts a line that is still pending. Feature-level tags
// are then applied against the original numbering: the feature line sits
// above every scenario, so no test-case insertion can have moved it.
//
// Identifiers that are not known (<= 0) are written as 0 inside a group that
// has at least one known identifier, keeping row positions aligned. A group
// with no known identifier is left untouched.
func Apply(lines []string, candidates []types.TestCaseCandidate, feature Feature, opts types.SyncOptions) []string {
	out := slices.Clone(lines)
	prefixes := opts.Tags

	for _, g := range groups(candidates) {
		if !anyKnown(g.ids) {
			continue
		}
		ids := normalize(g.ids)
		if g.exists && g.line >= 0 && g.line < len(out) && tags.Contains(out[g.line], prefixes.TestCase) {
			out[g.line] = tags.ReplaceIDs(out[g.line], prefixes.TestCase, ids)
			continue
		}
		at := g.firstLine - 1
		out = insertAt(out, at, indentOf(out, at)+tags.Format(prefixes.TestCase, ids))
	}

	out = applyFeatureTag(out, feature.Refs.Suite, feature.Refs.SuiteFound, feature.Line, prefixes.TestSuite, opts.TestSuiteID)
	out = applyFeatureTag(out, feature.Refs.Plan, feature.Refs.PlanFound, feature.Line, prefixes.TestPlan, opts.TestPlanID)
	return out
}

func applyFeatureTag(lines []string, ref tags.ReferenceTag, found bool, featureLine int, prefix string, id int) []string {
	if id <= 0 {
		return lines
	}
	if found {
		i := ref.Index()
		if i >= 0 && i < len(lines) && tags.Contains(lines[i], prefix) {
			lines[i] = tags.ReplaceIDs(lines[i], prefix, []int{id})
			return lines
		}
	}
	return insertAt(lines, featureLine-1, indentOf(lines, featureLine-1)+tags.Format(prefix, []int{id}))
}

// groups collects candidates by effective tag line, keeping row order
// inside each group, and returns them sorted by descending line.
func groups(candidates []types.TestCaseCandidate) []group {
	index := make(map[int]int)
	var out []group
	for _, c := range candidates {
		line := c.TagLine()
		i, ok := index[line]
		if !ok {
			i = len(out)
			index[line] = i
			out = append(out, group{line: line, firstLine: c.FirstLine, exists: c.ReferenceTagExists})
		}
		out[i].ids = append(out[i].ids, c.TestCaseID)
	}
	slices.SortStableFunc(out, func(a, b group) int { return cmp.Compare(b.line, a.line) })
	return out
}

func anyKnown(ids []int) bool {
	return slices.ContainsFunc(ids, func(id int) bool { return id > 0 })
}

func normalize(ids []int) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = max(id, 0)
	}
	return out
}

// insertAt inserts line at index i, giving it the same line ending as the
// line it lands above (or below, at the end of the document).
func insertAt(lines []string, i int, line string) []string {
	i = max(0, min(i, len(lines)))
	neighbour := i
	if neighbour == len(lines) {
		neighbour--
	}
	if neighbour >= 0 && strings.HasSuffix(lines[neighbour], "\r") {
		line += "\r"
	}
	return slices.Insert(lines, i, line)
}

// indentOf returns the leading whitespace of the line at index i, which is
// the line the new tag is inserted above.
func indentOf(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	l := lines[i]
	n := 0
	for n < len(l) && (l[n] == ' ' || l[n] == '\t') {
		n++
	}
	return l[:n]
}
