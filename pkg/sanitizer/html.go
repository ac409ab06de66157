// Package sanitizer strips dangerous markup from administrator-supplied
// email template bodies before they are stored.
package sanitizer

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	emailPolicy *bluemonday.Policy
	initOnce    sync.Once
)

func initPolicy() {
	initOnce.Do(func() {
		// Email HTML needs a wider tag set than typical user-generated
		// content: tables for layout, images, inline styles.
		emailPolicy = bluemonday.UGCPolicy()
		emailPolicy.AllowElements(
			"table", "thead", "tbody", "tfoot", "tr", "td", "th",
			"center", "font", "span", "div",
		)
		emailPolicy.AllowAttrs("style").Globally()
		emailPolicy.AllowAttrs("width", "height", "align", "valign", "bgcolor", "border", "cellpadding", "cellspacing").OnElements("table", "td", "th", "tr", "img")
		emailPolicy.AllowImages()
		emailPolicy.AllowStandardURLs()
	})
}

// SanitizeEmailHTML removes scripts, event handlers, and javascript:
// URLs from template HTML while keeping the layout markup email clients
// rely on. Placeholder tokens like {{name}} pass through untouched.
func SanitizeEmailHTML(s string) string {
	initPolicy()
	return emailPolicy.Sanitize(s)
}
