package dedup

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// charRatio is a normalized Levenshtein similarity in [0, 1].
func charRatio(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

// tokenSortRatio compares the two strings with their tokens sorted, so word
// order does not matter.
func tokenSortRatio(a, b string) float64 {
	return charRatio(sortTokens(a), sortTokens(b))
}

// tokenSetRatio compares the shared-token core of both strings against each
// side's full sorted token string, forgiving tokens present on only one side.
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var shared, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	core := strings.Join(shared, " ")
	full1 := strings.TrimSpace(core + " " + strings.Join(onlyA, " "))
	full2 := strings.TrimSpace(core + " " + strings.Join(onlyB, " "))

	return max3(charRatio(core, full1), charRatio(core, full2), charRatio(full1, full2))
}

// TitleSimilarity scores two normalized titles as the maximum of the
// character-ratio, token-sort and token-set measures.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return max3(charRatio(a, b), tokenSortRatio(a, b), tokenSetRatio(a, b))
}

// AuthorJaccard computes Jaccard similarity between the normalized author
// key sets of two author lists. Empty lists score zero.
func AuthorJaccard(a, b []string) float64 {
	setA := authorKeySet(a)
	setB := authorKeySet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
