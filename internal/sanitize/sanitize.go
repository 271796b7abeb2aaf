// Package sanitize strips HTML from user-supplied text before it is
// persisted, so stored values are plain text regardless of what clients send.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes all HTML tags from input and unescapes the entities the
// policy introduced, leaving plain text.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}
