package render

import (
	"strings"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Description template placeholders.
const (
	PlaceholderFeatureName         = "[FeatureName]"
	PlaceholderFeatureDescription  = "[FeatureDescription]"
	PlaceholderTestCaseName        = "[TestCaseName]"
	PlaceholderTestCaseDescription = "[TestCaseDescription]"
	PlaceholderRuleName            = "[RuleName]"
	PlaceholderRuleDescription     = "[RuleDescription]"
	PlaceholderBackgroundSteps     = "[BackgroundSteps]"
)

// ExpandStep replaces every <column> placeholder in step with the matching
// value of row. Placeholders without a header column are left untouched.
func ExpandStep(step string, header, row []string) string {
	if len(header) == 0 || !strings.Contains(step, "<") {
		return step
	}
	pairs := make([]string, 0, 2*len(header))
	for i, col := range header {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		pairs = append(pairs, "<"+col+">", value)
	}
	return strings.NewReplacer(pairs...).Replace(step)
}

// RenderDescription substitutes the candidate's names and descriptions
// into template. Unknown placeholders are left as written.
func RenderDescription(template string, c types.TestCaseCandidate) string {
	return strings.NewReplacer(
		PlaceholderFeatureName, c.FeatureName,
		PlaceholderFeatureDescription, c.FeatureDescription,
		PlaceholderTestCaseName, c.TestCaseName,
		PlaceholderTestCaseDescription, c.TestCaseDescription,
		PlaceholderRuleName, c.RuleName,
		PlaceholderRuleDescription, c.RuleDescription,
		PlaceholderBackgroundSteps, strings.Join(c.BackgroundSteps, "\n"),
	).Replace(template)
}

// Formatter post-processes a rendered description for the remote field.
type Formatter func(string) string

// Plain leaves the description as rendered.
func Plain(s string) string { return s }

// HTMLBlocks escapes the text and wraps each line in a div, replacing
// spaces with &nbsp; so the remote rich-text field keeps indentation.
func HTMLBlocks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		b.WriteString("<div>")
		b.WriteString(strings.ReplaceAll(EscapeMarkup(line), " ", "&nbsp;"))
		b.WriteString("</div>")
	}
	return b.String()
}
