package kernels

import (
	"regexp"
	"strings"
)

// childMarkerPattern strips the leading markers the decomposition
// grammar allows: a bare line, a bullet ("- ", "* "), or a numeric
// prefix ("1.", "2)", ...).
var childMarkerPattern = regexp.MustCompile(`^\s*(?:[-*]\s+|\d+[.)]\s+)`)

// ParseChildDescriptions implements the decomposition output grammar:
// one subtask per line, an optional bullet or numeric prefix, blank
// lines ignored. A candidate that parses to zero
// lines is not a valid decomposition; callers should red-flag it rather
// than silently accepting an empty child list.
func ParseChildDescriptions(text string) []string {
	lines := strings.Split(text, "\n")
	children := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(childMarkerPattern.ReplaceAllString(line, ""))
		if trimmed == "" {
			continue
		}
		children = append(children, trimmed)
	}
	return children
}
