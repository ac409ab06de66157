package template

import (
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Template is a named subject/body pair with {{placeholder}} tokens.
type Template struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	BodyHTML    string    `json:"bodyHtml"`
	BodyText    string    `json:"bodyText"`
	Variables   []string  `json:"variables"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListItem is the list-view projection of a template; bodies are
// excluded for brevity.
type ListItem struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	Variables   []string  `json:"variables"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// placeholderRe matches {{identifier}} tokens. Word characters only,
// case-sensitive; {{ user name }} or {{a.b}} are not placeholders.
var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ExtractVariables returns the deduplicated set of placeholder names
// found in the given texts, sorted for stable storage.
func ExtractVariables(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			seen[m[1]] = struct{}{}
		}
	}

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	slices.Sort(vars)
	return vars
}
