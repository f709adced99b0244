package types

// NoTestCaseID marks a candidate that has no remote identity yet.
const NoTestCaseID = -1

// TestCaseCandidate is one test case to be synchronized. A scenario outline
// yields one candidate per example row; those candidates share FirstLine,
// ReferenceTagLine and ReferenceTagExists and differ by ExampleRow.
type TestCaseCandidate struct {
	FeatureName         string
	FeatureDescription  string
	RuleName            string
	RuleDescription     string
	TestCaseName        string
	TestCaseDescription string

	// BackgroundSteps are the rendered steps of the effective background.
	BackgroundSteps []string
	// Steps are the rendered scenario steps, placeholder-expanded for
	// example rows.
	Steps []string

	// TestCaseID is the remote identifier, NoTestCaseID until assigned.
	TestCaseID int

	// FirstLine is the 1-based line of the scenario keyword.
	FirstLine int
	// ReferenceTagLine is the 0-based index of the existing test-case
	// reference tag line. Only meaningful when ReferenceTagExists.
	ReferenceTagLine   int
	ReferenceTagExists bool
	// ExampleRow is the example body row this candidate was expanded from,
	// or -1 for a plain scenario.
	ExampleRow int

	AutomatedTestName    string
	AutomatedTestStorage string
	AutomatedTestType    string
	AutomationEnabled    bool
}

// HasID reports whether the candidate already carries a remote identifier.
func (c TestCaseCandidate) HasID() bool {
	return c.TestCaseID > 0
}

// TagLine returns the 0-based line index where the candidate's test-case
// reference tag lives or must be inserted: the existing tag line, or the
// line directly above the scenario.
func (c TestCaseCandidate) TagLine() int {
	if c.ReferenceTagExists {
		return c.ReferenceTagLine
	}
	return c.FirstLine - 1
}

// EffectiveSteps returns the step list pushed to the remote store, with the
// background steps prepended when withBackground is set.
func (c TestCaseCandidate) EffectiveSteps(withBackground bool) []string {
	if !withBackground || len(c.BackgroundSteps) == 0 {
		return c.Steps
	}
	steps := make([]string, 0, len(c.BackgroundSteps)+len(c.Steps))
	steps = append(steps, c.BackgroundSteps...)
	return append(steps, c.Steps...)
}
