package types

// Tag is a single tag token as written in the feature file, e.g.
// "@TestCaseReference(12,13)". Line is 1-based.
type Tag struct {
	Name string
	Line int
}

// DataTable is a step argument made of rows of cell values.
type DataTable struct {
	Rows [][]string
}

// DocString is a step argument holding a free-text block.
type DocString struct {
	MediaType string
	Content   string
}

// Step is one Given/When/Then line. Keyword keeps its trailing space as
// written (e.g. "Given "), so Keyword+Text reproduces the source.
type Step struct {
	Keyword   string
	Text      string
	Line      int
	DataTable *DataTable
	DocString *DocString
}

// Examples is an example table attached to a scenario outline.
type Examples struct {
	Name   string
	Line   int
	Tags   []Tag
	Header []string
	Body   [][]string
}

// Background holds steps shared by the scenarios of a feature or rule.
type Background struct {
	Name  string
	Line  int
	Steps []Step
}

// Scenario is a scenario or scenario outline. Line is the 1-based line of
// the scenario keyword.
type Scenario struct {
	Keyword     string
	Name        string
	Description string
	Line        int
	Tags        []Tag
	Steps       []Step
	Examples    []Examples
}

// Rule groups scenarios under a business rule. A rule may carry its own
// background.
type Rule struct {
	Name        string
	Description string
	Line        int
	Tags        []Tag
	Children    []Child
}

// Child is one entry of a feature or rule body. Exactly one field is set;
// rules never contain nested rules.
type Child struct {
	Background *Background
	Scenario   *Scenario
	Rule       *Rule
}

// FeatureDocument is the parsed feature file. It is immutable once parsed
// and lives for a single synchronization run.
type FeatureDocument struct {
	Keyword     string
	Name        string
	Description string
	Line        int
	Tags        []Tag
	Children    []Child
}

// Background returns the first background among the feature's direct
// children, or nil.
func (f FeatureDocument) Background() *Background {
	return firstBackground(f.Children)
}

// Scenarios returns the feature's direct scenarios in document order.
func (f FeatureDocument) Scenarios() []*Scenario {
	return scenarios(f.Children)
}

// Rules returns the feature's rules in document order.
func (f FeatureDocument) Rules() []*Rule {
	var rules []*Rule
	for _, c := range f.Children {
		if c.Rule != nil {
			rules = append(rules, c.Rule)
		}
	}
	return rules
}

// Background returns the rule's own background, or nil.
func (r Rule) Background() *Background {
	return firstBackground(r.Children)
}

// Scenarios returns the rule's scenarios in document order.
func (r Rule) Scenarios() []*Scenario {
	return scenarios(r.Children)
}

func firstBackground(children []Child) *Background {
	for _, c := range children {
		if c.Background != nil {
			return c.Background
		}
	}
	return nil
}

func scenarios(children []Child) []*Scenario {
	var out []*Scenario
	for _, c := range children {
		if c.Scenario != nil {
			out = append(out, c.Scenario)
		}
	}
	return out
}
