// Package tags locates and rewrites @Prefix(ids) reference tags that pin
// remote identifiers to scenarios and features.
package tags

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// ReferenceTag is a parsed @Prefix(ids) tag.
type ReferenceTag struct {
	Prefix string
	IDs    []int
	// Line is 1-based, as reported by the parser.
	Line int
}

// Index returns the 0-based line index for direct access into a line slice.
func (r ReferenceTag) Index() int {
	return r.Line - 1
}

// ID returns the identifier at position i, or types.NoTestCaseID when the
// list is too short.
func (r ReferenceTag) ID(i int) int {
	if i < 0 || i >= len(r.IDs) {
		return types.NoTestCaseID
	}
	return r.IDs[i]
}

// ParseError reports a reference tag whose identifier list is not a list of
// integers. It wraps types.ErrMalformedTag.
type ParseError struct {
	Tag   string
	Line  int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: tag %s: invalid identifier %q: %v", e.Line, e.Tag, e.Token, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{types.ErrMalformedTag, e.Err}
}

func matcher(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^@` + regexp.QuoteMeta(prefix) + `\((.*)\)$`)
}

// Find returns the first tag named @prefix(...) with its identifiers parsed.
// The boolean is false when no such tag exists.
func Find(prefix string, tags []types.Tag) (ReferenceTag, bool, error) {
	re := matcher(prefix)
	for _, tag := range tags {
		m := re.FindStringSubmatch(tag.Name)
		if m == nil {
			continue
		}
		ids, err := ParseIDs(m[1])
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Tag = tag.Name
				pe.Line = tag.Line
			}
			return ReferenceTag{}, false, err
		}
		return ReferenceTag{Prefix: prefix, IDs: ids, Line: tag.Line}, true, nil
	}
	return ReferenceTag{}, false, nil
}

// ParseIDs splits a comma-separated identifier list. An empty list yields
// no identifiers; any non-integer token is an error.
func ParseIDs(contents string) ([]int, error) {
	if strings.TrimSpace(contents) == "" {
		return nil, nil
	}
	parts := strings.Split(contents, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		tok := strings.TrimSpace(p)
		id, err := strconv.Atoi(tok)
		if err != nil {
			return nil, &ParseError{Token: tok, Err: err}
		}
		if id < 0 {
			return nil, &ParseError{Token: tok, Err: fmt.Errorf("negative identifier")}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Format renders a tag line for prefix and ids, e.g. @TestCaseReference(1,2).
func Format(prefix string, ids []int) string {
	return "@" + prefix + "(" + JoinIDs(ids) + ")"
}

// JoinIDs joins identifiers with commas and no spaces.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Contains reports whether line carries a tag for prefix.
func Contains(line, prefix string) bool {
	return strings.Contains(line, "@"+prefix+"(")
}

// ReplaceIDs rewrites the parenthesized identifier list of every
// @prefix(digits,...) occurrence in line. No other character changes.
func ReplaceIDs(line, prefix string, ids []int) string {
	re := regexp.MustCompile(`@` + regexp.QuoteMeta(prefix) + `\([\d,\s]*\)`)
	replacement := Format(prefix, ids)
	return re.ReplaceAllLiteralString(line, replacement)
}
