package render

import (
	"fmt"
	"strings"
)

const (
	actionWrapper   = "<DIV><DIV><P>%s<BR/></P></DIV></DIV>"
	emptyExpected   = "<DIV><P><BR/></P></DIV>"
	parameterString = `<parameterizedString isformatted="true">%s</parameterizedString>`
)

// StepsXML builds the remote steps script: one action step per entry with
// an empty expected result. Step ids start at 2 and "last" is one past the
// final id, as the store expects.
func StepsXML(steps []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<steps id="0" last="%d">`, len(steps)+1)
	for i, step := range steps {
		action := strings.ReplaceAll(strings.ReplaceAll(step, "\r\n", "\n"), "\n", "<BR/>")
		fmt.Fprintf(&b, `<step id="%d" type="ActionStep">`, i+2)
		fmt.Fprintf(&b, parameterString, EscapeMarkup(fmt.Sprintf(actionWrapper, action)))
		fmt.Fprintf(&b, parameterString, EscapeMarkup(emptyExpected))
		b.WriteString("<description/></step>")
	}
	b.WriteString("</steps>")
	return b.String()
}
