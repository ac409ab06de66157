package template

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
)

// Rendered is the result of resolving a template against variable
// bindings: a final subject/HTML/text triple ready for dispatch.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render substitutes bound {{key}} tokens in the template's subject and
// bodies. Tokens with no binding are left verbatim; callers pre-join
// list values into a single display string before binding.
func Render(tmpl *Template, vars map[string]string) Rendered {
	return Rendered{
		Subject: Substitute(tmpl.Subject, vars),
		HTML:    Substitute(tmpl.BodyHTML, vars),
		Text:    Substitute(tmpl.BodyText, vars),
	}
}

// Substitute replaces every {{key}} token that has a binding in vars.
// Unknown tokens pass through untouched.
func Substitute(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(token string) string {
		key := token[2 : len(token)-2]
		if v, ok := vars[key]; ok {
			return v
		}
		return token
	})
}

// TextToHTML converts a plain-text body supplied on the fly into
// minimal HTML: escape, then line breaks become <br>. Used by the
// manual send path when no stored template is involved.
func TextToHTML(text string) string {
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

var markdown = goldmark.New()

// MarkdownToHTML renders a markdown body to HTML for the manual send
// path's markdown field.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("template: failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}
