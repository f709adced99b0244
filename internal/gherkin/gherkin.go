// Package gherkin parses feature files with the Cucumber Gherkin parser and
// converts the resulting AST into a types.FeatureDocument.
package gherkin

import (
	"bytes"
	"fmt"
	"io"
	"os"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// ParseFile reads and parses the feature file at path.
func ParseFile(path string) (types.FeatureDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FeatureDocument{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses feature file content.
func ParseBytes(data []byte) (types.FeatureDocument, error) {
	return Parse(bytes.NewReader(data))
}

// Parse parses a feature file from r. A document without a Feature is
// types.ErrNoFeature; grammar errors wrap types.ErrParse.
func Parse(r io.Reader) (types.FeatureDocument, error) {
	doc, err := gherkin.ParseGherkinDocument(r, (&messages.Incrementing{}).NewId)
	if err != nil {
		return types.FeatureDocument{}, fmt.Errorf("%w: %w", types.ErrParse, err)
	}
	if doc.Feature == nil {
		return types.FeatureDocument{}, types.ErrNoFeature
	}
	return convertFeature(doc.Feature), nil
}

func line(l *messages.Location) int {
	if l == nil {
		return 0
	}
	return int(l.Line)
}

func convertTags(in []*messages.Tag) []types.Tag {
	out := make([]types.Tag, 0, len(in))
	for _, t := range in {
		out = append(out, types.Tag{Name: t.Name, Line: line(t.Location)})
	}
	return out
}

func convertFeature(f *messages.Feature) types.FeatureDocument {
	doc := types.FeatureDocument{
		Keyword:     f.Keyword,
		Name:        f.Name,
		Description: f.Description,
		Line:        line(f.Location),
		Tags:        convertTags(f.Tags),
	}
	for _, c := range f.Children {
		switch {
		case c.Background != nil:
			doc.Children = append(doc.Children, types.Child{Background: convertBackground(c.Background)})
		case c.Scenario != nil:
			doc.Children = append(doc.Children, types.Child{Scenario: convertScenario(c.Scenario)})
		case c.Rule != nil:
			doc.Children = append(doc.Children, types.Child{Rule: convertRule(c.Rule)})
		}
	}
	return doc
}

func convertRule(r *messages.Rule) *types.Rule {
	rule := &types.Rule{
		Name:        r.Name,
		Description: r.Description,
		Line:        line(r.Location),
		Tags:        convertTags(r.Tags),
	}
	for _, c := range r.Children {
		switch {
		case c.Background != nil:
			rule.Children = append(rule.Children, types.Child{Background: convertBackground(c.Background)})
		case c.Scenario != nil:
			rule.Children = append(rule.Children, types.Child{Scenario: convertScenario(c.Scenario)})
		}
	}
	return rule
}

func convertBackground(b *messages.Background) *types.Background {
	return &types.Background{
		Name:  b.Name,
		Line:  line(b.Location),
		Steps: convertSteps(b.Steps),
	}
}

func convertScenario(s *messages.Scenario) *types.Scenario {
	sc := &types.Scenario{
		Keyword:     s.Keyword,
		Name:        s.Name,
		Description: s.Description,
		Line:        line(s.Location),
		Tags:        convertTags(s.Tags),
		Steps:       convertSteps(s.Steps),
	}
	for _, ex := range s.Examples {
		sc.Examples = append(sc.Examples, convertExamples(ex))
	}
	return sc
}

func convertExamples(ex *messages.Examples) types.Examples {
	out := types.Examples{
		Name: ex.Name,
		Line: line(ex.Location),
		Tags: convertTags(ex.Tags),
	}
	if ex.TableHeader != nil {
		out.Header = cells(ex.TableHeader)
	}
	for _, row := range ex.TableBody {
		out.Body = append(out.Body, cells(row))
	}
	return out
}

func convertSteps(in []*messages.Step) []types.Step {
	out := make([]types.Step, 0, len(in))
	for _, s := range in {
		step := types.Step{
			Keyword: s.Keyword,
			Text:    s.Text,
			Line:    line(s.Location),
		}
		if s.DataTable != nil {
			table := &types.DataTable{}
			for _, row := range s.DataTable.Rows {
				table.Rows = append(table.Rows, cells(row))
			}
			step.DataTable = table
		}
		if s.DocString != nil {
			step.DocString = &types.DocString{MediaType: s.DocString.MediaType, Content: s.DocString.Content}
		}
		out = append(out, step)
	}
	return out
}

func cells(row *messages.TableRow) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.Value
	}
	return out
}
