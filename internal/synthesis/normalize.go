package synthesis

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SimilarityThreshold is the token Jaccard index at which two titles in the
// same category are treated as the same defect.
const SimilarityThreshold = 0.5

var folder = cases.Fold()

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "no": true, "not": true,
	"of": true, "on": true, "or": true, "page": true, "pages": true, "site": true,
	"the": true, "this": true, "to": true, "too": true, "was": true, "with": true,
	"without": true, "missing": true,
}

// normalizeTitle case-folds s and returns its distinct content tokens in
// sorted order.
func normalizeTitle(s string) []string {
	s = folder.String(norm.NFKC.String(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// jaccard returns |a∩b| / |a∪b| for sorted, distinct token lists. Two empty
// lists are identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var inter int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
