package matcher

import (
	"regexp"
	"strings"

	"document-reconciliation-service/internal/normalize"
)

// TextSimilarity scores two free-text strings in [0, 1]. Both sides are
// normalized first (case, diacritics, legal-form suffixes), so
// "Müller GmbH" and "MUELLER" compare well. Exact normalized equality is
// 1.0, containment 0.9, otherwise a longest-common-subsequence ratio.
func TextSimilarity(a, b string) float64 {
	na := normalize.Text(a)
	nb := normalize.Text(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}
	return lcsRatio(na, nb)
}

// lcsRatio is 2*LCS / (len(a)+len(b)) over runes, the classic sequence
// similarity ratio.
func lcsRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

var (
	refPrefixPattern = regexp.MustCompile(`(?i)^(invoice|inv|ref|re|nr|no)[\s\-.:#]*`)
	digitRunPattern  = regexp.MustCompile(`\d+`)
)

// ReferenceScore looks for an invoice reference inside free text. A
// verbatim hit scores 1.0; a hit after stripping a common prefix like
// "RE-" scores 0.95; a bare numeric core of at least four digits scores
// 0.8.
func ReferenceScore(text, reference string) float64 {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(reference) == "" {
		return 0.0
	}

	textLower := strings.ToLower(text)
	refLower := strings.ToLower(strings.TrimSpace(reference))

	if strings.Contains(textLower, refLower) {
		return 1.0
	}

	if stripped := refPrefixPattern.ReplaceAllString(refLower, ""); stripped != "" && stripped != refLower {
		if strings.Contains(textLower, stripped) {
			return 0.95
		}
	}

	for _, digits := range digitRunPattern.FindAllString(reference, -1) {
		if len(digits) >= 4 && strings.Contains(text, digits) {
			return 0.8
		}
	}
	return 0.0
}
