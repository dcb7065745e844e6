package runtime

import "strings"

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&#x27;",
	`/`, "&#x2F;",
)

// EscapeHTML applies the fixed HTML entity escaping autoescape (and the
// `escape` builtin filter) use: & < > " ' and / are never left
// unescaped in escaped output.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }
