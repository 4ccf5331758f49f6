package redflag

import (
	"fmt"
	"regexp"
	"strings"
)

var fileBlockPattern = regexp.MustCompile(`(?s)<file path="([^"]+)">(.*?)</file>`)

// SyntaxFlagger validates delimiter balance and quote balance, optionally
// after extracting `<file path="...">...</file>` blocks. Richer grammar
// checks per language are intentionally not attempted here: the only
// requirement is that checks never false-positive on syntactically valid
// input, and a generic delimiter/quote balance check satisfies that for
// every language named in practice.
type SyntaxFlagger struct {
	Language    string
	ExtractXML  bool
}

// NewSyntaxFlagger builds a SyntaxFlagger.
func NewSyntaxFlagger(language string, extractXML bool) *SyntaxFlagger {
	return &SyntaxFlagger{Language: language, ExtractXML: extractXML}
}

func (f *SyntaxFlagger) Evaluate(candidate string) (bool, string) {
	if !f.ExtractXML {
		if ok, reason := balanced(candidate); !ok {
			return true, reason
		}
		return false, ""
	}

	matches := fileBlockPattern.FindAllStringSubmatch(candidate, -1)
	if len(matches) == 0 {
		return true, "extract_xml enabled but no <file path=\"...\"> blocks found"
	}
	for _, m := range matches {
		path, body := m[1], m[2]
		if ok, reason := balanced(body); !ok {
			if lang := languageFromPath(path); lang != "" {
				return true, fmt.Sprintf("%s [%s]: %s", path, lang, reason)
			}
			return true, fmt.Sprintf("%s: %s", path, reason)
		}
	}
	return false, ""
}

// balanced checks matched delimiter balance (), [], {} and balanced
// quotes, ignoring characters inside line and block comments so that
// commented-out delimiters never trip a false positive.
func balanced(text string) (bool, string) {
	stack := make([]rune, 0, 8)
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	openers := map[rune]bool{'(': true, '[': true, '{': true}

	inLineComment := false
	inBlockComment := false
	var quote rune

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if inLineComment {
			if r == '\n' {
				inLineComment = false
			}
			continue
		}
		if inBlockComment {
			if r == '*' && next == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if quote != 0 {
			if r == '\\' {
				i++
				continue
			}
			if r == quote {
				quote = 0
			}
			continue
		}

		switch {
		case r == '/' && next == '/':
			inLineComment = true
			i++
			continue
		case r == '/' && next == '*':
			inBlockComment = true
			i++
			continue
		case r == '"' || r == '\'' || r == '`':
			quote = r
			continue
		case openers[r]:
			stack = append(stack, r)
		case pairs[r] != 0:
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false, fmt.Sprintf("unmatched %q", string(r))
			}
			stack = stack[:len(stack)-1]
		}
	}

	if quote != 0 {
		return false, fmt.Sprintf("unterminated quote %q", string(quote))
	}
	if len(stack) > 0 {
		return false, fmt.Sprintf("unclosed %q", string(stack[len(stack)-1]))
	}
	return true, ""
}

// languageFromPath returns a best-effort language name from a file
// extension, used only to annotate flag reasons.
func languageFromPath(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return ""
	}
	return path[i+1:]
}
