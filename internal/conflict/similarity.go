package conflict

import (
	"context"
	"regexp"
	"strings"

	"github.com/ShayCichocki/chunkd/internal/collab"
)

// TokenComparator is the builtin similarity backend: Jaccard overlap over
// lowercased alphanumeric terms. It needs no network and serves as the
// fallback when no semantic comparator is configured.
type TokenComparator struct{}

var _ collab.Comparator = (*TokenComparator)(nil)

var termRe = regexp.MustCompile(`[a-zA-Z0-9_./]+`)

// stopTerms are too common in goal prose to signal shared intent.
var stopTerms = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "this": true, "that": true, "is": true, "it": true,
	"be": true, "as": true, "by": true, "at": true, "from": true,
	"add": true, "update": true, "implement": true, "support": true,
	"should": true, "will": true, "must": true, "chunk": true,
}

func terms(text string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range termRe.FindAllString(strings.ToLower(text), -1) {
		if len(t) < 3 || stopTerms[t] {
			continue
		}
		out[t] = true
	}
	return out
}

// Similarity returns the Jaccard index of the two texts' term sets.
func (c *TokenComparator) Similarity(_ context.Context, a, b string) (float64, error) {
	ta, tb := terms(a), terms(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0, nil
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0, nil
	}
	return float64(inter) / float64(union), nil
}
