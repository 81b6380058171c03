package conflict

import (
	"regexp"
	"strings"
)

// Goal documents are stamped from shared templates. Identical scaffolding
// (marker-fenced blocks, HTML comments, template-tagged code fences) must be
// stripped before term comparison, or unrelated chunks that share only
// template text score as overlapping.
var (
	templateBlockRe = regexp.MustCompile(`(?s)<!--\s*template\s*-->.*?<!--\s*/template\s*-->`)
	htmlCommentRe   = regexp.MustCompile(`(?s)<!--.*?-->`)
	templateFenceRe = regexp.MustCompile("(?s)```template\\n.*?```")
)

// placeholderTokens are template filler terms that never describe real work.
var placeholderTokens = map[string]bool{
	"path/to/file": true,
	"path/to/dir":  true,
	"tbd":          true,
	"todo":         true,
	"placeholder":  true,
}

// StripBoilerplate removes fixed-marker template blocks from a goal document
// so only the chunk's own prose participates in similarity comparison.
func StripBoilerplate(text string) string {
	text = templateBlockRe.ReplaceAllString(text, "")
	text = templateFenceRe.ReplaceAllString(text, "")
	text = htmlCommentRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if placeholderTokens[strings.ToLower(trimmed)] {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

var locationLineRe = regexp.MustCompile(`(?im)^[\s\-*]*\**location\s*:?\**\s*:?\s*` + "`?" + `([^\s*` + "`" + `]+)`)

// PlanLocations extracts the file paths named in a plan's "Location:" lines.
func PlanLocations(plan string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, m := range locationLineRe.FindAllStringSubmatch(plan, -1) {
		p := strings.TrimSpace(m[1])
		if p != "" && !seen[p] && !placeholderTokens[strings.ToLower(p)] {
			paths = append(paths, p)
			seen[p] = true
		}
	}
	return paths
}

var symbolLineRe = regexp.MustCompile(`(?im)^[\s\-*]*\**symbols?\s*:?\**\s*:?\s*(.+)$`)

// PlanSymbols extracts the predicted symbols named in a plan's "Symbol:" or
// "Symbols:" lines. Symbols may be comma-separated and backtick-quoted.
func PlanSymbols(plan string) []string {
	var symbols []string
	seen := make(map[string]bool)
	for _, m := range symbolLineRe.FindAllStringSubmatch(plan, -1) {
		for _, s := range strings.Split(m[1], ",") {
			s = strings.Trim(strings.TrimSpace(s), "`*")
			if s != "" && !seen[s] {
				symbols = append(symbols, s)
				seen[s] = true
			}
		}
	}
	return symbols
}

// Intersect returns the sorted-order-preserving intersection of two string
// slices.
func Intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	for _, s := range b {
		if set[s] {
			out = append(out, s)
			set[s] = false
		}
	}
	return out
}
