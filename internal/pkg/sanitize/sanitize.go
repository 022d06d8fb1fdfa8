// Package sanitize strips all HTML from user-supplied text before it is
// stored. The policy allows zero tags and zero attributes.
package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Strip removes every HTML tag and attribute from input. The sanitizer
// entity-escapes what it keeps, so the result is unescaped back to plain
// text before storage.
func Strip(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}
