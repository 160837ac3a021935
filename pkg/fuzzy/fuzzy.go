package fuzzy

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Match pairs a candidate string with its similarity score in [0, 100].
type Match struct {
	Candidate string `json:"candidate"`
	Score     int    `json:"score"`
}

// TokenSetRatio scores two strings with an order-insensitive, subset-tolerant
// token metric. Both sides are lowercased and tokenized on whitespace; the
// sorted token intersection and per-side remainders are reassembled into
// comparison strings, and the best pairwise Levenshtein ratio among the
// distinct comparisons is returned. Token-set-identical inputs score 100, and
// only those do: comparisons that collapse to identical strings because one
// remainder is empty are skipped, so a strict token subset scores high but
// never perfect.
func TokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection, restA, restB := splitSets(tokensA, tokensB)
	if len(restA) == 0 && len(restB) == 0 {
		return 100
	}

	base := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(restA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(restB, " "))

	best := 0
	for _, pair := range [][2]string{{base, combinedA}, {base, combinedB}, {combinedA, combinedB}} {
		if pair[0] == pair[1] {
			continue
		}
		if r := ratio(pair[0], pair[1]); r > best {
			best = r
		}
	}
	return best
}

// BestMatch returns the highest scoring candidate for the query. The boolean
// is false when candidates is empty.
func BestMatch(query string, candidates []string) (Match, bool) {
	top := TopK(query, candidates, 1)
	if len(top) == 0 {
		return Match{}, false
	}
	return top[0], true
}

// TopK returns up to k candidates ordered by token-set score descending.
// Equal scores are ordered by Jaro-Winkler similarity to the query, then
// lexicographically, keeping results deterministic.
func TopK(query string, candidates []string, k int) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		matches = append(matches, Match{Candidate: candidate, Score: TokenSetRatio(query, candidate)})
	}
	lowered := strings.ToLower(query)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		ji := smetrics.JaroWinkler(lowered, strings.ToLower(matches[i].Candidate), 0.7, 4)
		jj := smetrics.JaroWinkler(lowered, strings.ToLower(matches[j].Candidate), 0.7, 4)
		if ji != jj {
			return ji > jj
		}
		return matches[i].Candidate < matches[j].Candidate
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}

func splitSets(a, b map[string]struct{}) (intersection, restA, restB []string) {
	for token := range a {
		if _, ok := b[token]; ok {
			intersection = append(intersection, token)
		} else {
			restA = append(restA, token)
		}
	}
	for token := range b {
		if _, ok := a[token]; !ok {
			restB = append(restB, token)
		}
	}
	sort.Strings(intersection)
	sort.Strings(restA)
	sort.Strings(restB)
	return intersection, restA, restB
}

func ratio(a, b string) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	r := (total - dist) * 100 / total
	if r < 0 {
		return 0
	}
	return r
}
