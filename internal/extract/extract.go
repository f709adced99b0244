// Package extract walks a parsed feature document and produces the ordered
// list of test-case candidates to synchronize.
package extract

import (
	"regexp"
	"strings"

	"github.com/mesh-intelligence/gherkinsync/internal/render"
	"github.com/mesh-intelligence/gherkinsync/internal/tags"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Lookup maps a scenario name to the qualified name of the automated test
// that implements it.
type Lookup func(scenarioName string) (string, bool)

// Options controls extraction.
type Options struct {
	// TestCaseTag is the prefix of scenario reference tags.
	TestCaseTag         string
	AssociateAutomation bool
	// AutomatedTestStorage is the test container (e.g. an assembly or
	// package path) recorded on automated test cases.
	AutomatedTestStorage string
	Automation           Lookup
}

// OptionsFrom builds extraction options from sync options.
func OptionsFrom(opts types.SyncOptions, lookup Lookup) Options {
	return Options{
		TestCaseTag:          opts.Tags.TestCase,
		AssociateAutomation:  opts.AssociateAutomation,
		AutomatedTestStorage: opts.AutomatedTestStorage,
		Automation:           lookup,
	}
}

var (
	quotedSegment = regexp.MustCompile(`"([^"]*)"`)
	placeholder   = regexp.MustCompile(`<[^>]+>`)
)

// Extract returns one candidate per plain scenario and one per example row
// of a scenario outline, in document order: the feature's own scenarios
// first, then each rule's scenarios.
//
// A malformed reference tag aborts extraction; no partial list is returned.
func Extract(doc types.FeatureDocument, opts Options) ([]types.TestCaseCandidate, error) {
	if opts.TestCaseTag == "" {
		opts.TestCaseTag = types.DefaultTestCaseTag
	}

	var featureBackground []string
	if bg := doc.Background(); bg != nil {
		featureBackground = RenderSteps(bg.Steps)
	}

	owner := owner{featureName: doc.Name, featureDescription: doc.Description}

	var out []types.TestCaseCandidate
	for _, sc := range doc.Scenarios() {
		cs, err := convert(sc, featureBackground, owner, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}

	for _, rule := range doc.Rules() {
		ruleOwner := owner
		ruleOwner.ruleName = rule.Name
		ruleOwner.ruleDescription = rule.Description

		background := RuleBackground(featureBackground, rule)
		for _, sc := range rule.Scenarios() {
			cs, err := convert(sc, background, ruleOwner, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, cs...)
		}
	}
	return out, nil
}

// RuleBackground returns the background steps used by a rule's scenarios.
// Feature background steps win whenever there are any; the rule's own
// background is consulted only when the feature has none.
func RuleBackground(featureBackground []string, rule *types.Rule) []string {
	if len(featureBackground) > 0 {
		return featureBackground
	}
	if bg := rule.Background(); bg != nil {
		return RenderSteps(bg.Steps)
	}
	return nil
}

// RenderSteps renders steps as keyword + text + argument.
func RenderSteps(steps []types.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = RenderStep(s)
	}
	return out
}

// RenderStep renders a single step. Data tables become ASCII tables and doc
// strings are appended after a blank line.
func RenderStep(s types.Step) string {
	text := s.Keyword + s.Text
	switch {
	case s.DataTable != nil:
		return text + render.RenderTable(s.DataTable.Rows)
	case s.DocString != nil:
		return text + "\n\n" + s.DocString.Content
	default:
		return text
	}
}

type owner struct {
	featureName        string
	featureDescription string
	ruleName           string
	ruleDescription    string
}

func convert(sc *types.Scenario, background []string, o owner, opts Options) ([]types.TestCaseCandidate, error) {
	ref, found, err := tags.Find(opts.TestCaseTag, sc.Tags)
	if err != nil {
		return nil, err
	}

	base := types.TestCaseCandidate{
		FeatureName:         o.featureName,
		FeatureDescription:  o.featureDescription,
		RuleName:            o.ruleName,
		RuleDescription:     o.ruleDescription,
		TestCaseName:        sc.Name,
		TestCaseDescription: sc.Description,
		BackgroundSteps:     background,
		FirstLine:           sc.Line,
		ReferenceTagExists:  found,
		ExampleRow:          -1,
		AutomationEnabled:   opts.AssociateAutomation,
	}
	if found {
		base.ReferenceTagLine = ref.Index()
	}
	if opts.AssociateAutomation {
		base.AutomatedTestStorage = opts.AutomatedTestStorage
	}

	automatedName := ""
	if opts.AssociateAutomation && opts.Automation != nil {
		automatedName, _ = opts.Automation(sc.Name)
	}

	steps := RenderSteps(sc.Steps)

	if len(sc.Examples) == 0 {
		c := base
		c.Steps = steps
		c.TestCaseID = ref.ID(0)
		c.AutomatedTestName = automatedName
		return []types.TestCaseCandidate{c}, nil
	}

	if automatedName != "" {
		automatedName += ArgumentSignature(sc.Steps)
	}

	example := sc.Examples[0]
	out := make([]types.TestCaseCandidate, 0, len(example.Body))
	for i, row := range example.Body {
		c := base
		c.ExampleRow = i
		c.TestCaseID = ref.ID(i)
		c.Steps = make([]string, len(steps))
		for j, s := range steps {
			c.Steps[j] = render.ExpandStep(s, example.Header, row)
		}
		c.AutomatedTestName = render.ExpandStep(automatedName, example.Header, row)
		out = append(out, c)
	}
	return out, nil
}

// ArgumentSignature collects the distinct <placeholder> markers that appear
// inside double-quoted segments of the step texts and renders them as a
// parameter list, e.g. ("<user>","<count>"). It returns "" when there are
// none.
func ArgumentSignature(steps []types.Step) string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range steps {
		for _, q := range quotedSegment.FindAllStringSubmatch(s.Text, -1) {
			for _, p := range placeholder.FindAllString(q[1], -1) {
				if !seen[p] {
					seen[p] = true
					names = append(names, p)
				}
			}
		}
	}
	if len(names) == 0 {
		return ""
	}
	return `("` + strings.Join(names, `","`) + `")`
}
