package report

import (
	"regexp"
)

// Placeholder syntax: `name` for a plain reference, `name`[modifiers] for a
// formatted reference. The backtick is the sole delimiter; the modifier
// string is opaque here and interpreted only by the format evaluator.
var placeholderRegex = regexp.MustCompile("`([^`]+)`(?:\\[([^\\]]+)\\])?")

// Placeholder is one matched placeholder token inside a piece of text.
type Placeholder struct {
	Name      string
	Modifiers string
	Start     int // byte offset of the token within the scanned text
	End       int // byte offset just past the token
}

// findPlaceholders scans text for placeholder tokens in order of appearance.
func findPlaceholders(text string) []Placeholder {
	matches := placeholderRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		p := Placeholder{
			Name:  text[m[2]:m[3]],
			Start: m[0],
			End:   m[1],
		}
		if m[4] >= 0 {
			p.Modifiers = text[m[4]:m[5]]
		}
		out = append(out, p)
	}
	return out
}

// findFirstPlaceholder returns the first placeholder at or after the given
// offset, or false when there is none.
func findFirstPlaceholder(text string, from int) (Placeholder, bool) {
	if from >= len(text) {
		return Placeholder{}, false
	}
	m := placeholderRegex.FindStringSubmatchIndex(text[from:])
	if m == nil {
		return Placeholder{}, false
	}
	p := Placeholder{
		Name:  text[from+m[2] : from+m[3]],
		Start: from + m[0],
		End:   from + m[1],
	}
	if m[4] >= 0 {
		p.Modifiers = text[from+m[4] : from+m[5]]
	}
	return p, true
}

// referencedNames returns every distinct variable name referenced by
// placeholders in the given expression strings, in first-seen order.
func referencedNames(exprs ...string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range exprs {
		for _, p := range findPlaceholders(e) {
			if !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
	}
	return names
}
