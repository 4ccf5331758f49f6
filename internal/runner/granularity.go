package runner

import (
	"regexp"
	"strings"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// isAtomic reports whether g's bounds mark step as already small enough
// to solve directly instead of decomposing further. max_depth is a hard
// recursion ceiling. max_files/max_lines_changed have no real diff to
// measure against yet at this point in a step's life (ApplyVerifyTask is
// the earliest point one exists), so they are checked against an
// estimate derived from the step's description text: the same kind of
// size-from-text proxy a decomposition-depth heuristic needs when the
// only available signal is what the step says it will do.
func isAtomic(g schema.StepGranularity, step *schema.Step) bool {
	if g.MaxDepth > 0 && step.Depth >= g.MaxDepth {
		return true
	}
	if g.MaxFiles > 0 && estimatedFileCount(step.Description) >= g.MaxFiles {
		return true
	}
	if g.MaxLinesChanged > 0 && estimatedLineCount(step.Description) >= g.MaxLinesChanged {
		return true
	}
	return false
}

// filePathPattern matches word.ext-shaped tokens: a crude but cheap way
// to spot file paths named in a decomposition or solve description
// without parsing the text as anything structured.
var filePathPattern = regexp.MustCompile(`\S+\.[A-Za-z][A-Za-z0-9]{0,8}\b`)

// estimatedFileCount counts distinct file-path-looking tokens in
// description. A description naming no files is assumed to touch
// exactly one, since every solved step writes at least one file.
func estimatedFileCount(description string) int {
	matches := filePathPattern.FindAllString(description, -1)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[strings.ToLower(m)] = struct{}{}
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}

// estimatedLineCount uses word count as a rough stand-in for how many
// lines a step's description implies changing.
func estimatedLineCount(description string) int {
	return len(strings.Fields(description))
}
