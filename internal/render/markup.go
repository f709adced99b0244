package render

import "strings"

var (
	unescaper = strings.NewReplacer(
		"&apos;", "'",
		"&quot;", `"`,
		"&gt;", ">",
		"&lt;", "<",
		"&amp;", "&",
	)
	escaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"'", "&apos;",
	)
)

// EscapeMarkup escapes &, <, > and ' after first unescaping any named
// entities already present, so text that came back from the store is not
// escaped twice.
func EscapeMarkup(s string) string {
	return escaper.Replace(unescaper.Replace(s))
}

// UnescapeMarkup reverses EscapeMarkup.
func UnescapeMarkup(s string) string {
	return unescaper.Replace(s)
}
