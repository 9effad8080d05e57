package script

import "strings"

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"'", `\'`,
	"`", "\\`",
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
	"</", `<\/`,
)

// EscapeJS escapes a user-provided string for interpolation into a
// double-quoted javascript string literal. Every search term, recorded
// value or candidate id crosses the process boundary as source text,
// not data, so this is mandatory before any interpolation.
func EscapeJS(s string) string {
	return jsEscaper.Replace(s)
}

// jsStringArray renders a slice as a javascript array literal of
// escaped string constants.
func jsStringArray(items []string) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('"')
		sb.WriteString(EscapeJS(item))
		sb.WriteByte('"')
	}
	sb.WriteByte(']')
	return sb.String()
}
