// Package fuzzy implements token-set fuzzy string matching, scored the
// way thefuzz.fuzz.token_set_ratio scores a pair of strings: break both
// into lowercase word sets, compare the intersection against each
// side's leftover difference, and take the best of three plain
// Levenshtein ratios. No third-party library in the retrieved example
// pack offers a fuzzy string scorer, so this package is built directly
// on the standard library.
package fuzzy

import (
	"sort"
	"strings"
)

// Ratio scores two strings 0-100 using plain Levenshtein similarity.
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	return int((1.0 - float64(dist)/float64(maxLen)) * 100)
}

// TokenSetRatio scores two strings the way token_set_ratio does:
// tokenize, dedupe, sort each side's words, then compare the shared
// token prefix against each side's unique remainder and return the
// best-scoring comparison. This makes substring-style matches ("Sonu
// Sharma" vs "Sonu Kumar Sharma") score far higher than plain Ratio
// would.
func TokenSetRatio(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := make([]string, 0)
	var onlyA, onlyB []string
	inB := make(map[string]bool, len(setB))
	for _, t := range setB {
		inB[t] = true
	}
	matched := make(map[string]bool, len(setA))
	for _, t := range setA {
		if inB[t] {
			intersection = append(intersection, t)
			matched[t] = true
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range setB {
		if !matched[t] {
			onlyB = append(onlyB, t)
		}
	}

	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sorted := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(onlyB, " "))

	best := Ratio(sorted, combinedA)
	if r := Ratio(sorted, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
