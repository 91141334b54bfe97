package menu

import (
	"sort"
	"strings"
	"unicode"
)

// MatchRule names which scoring rule produced a match.
type MatchRule string

const (
	// RuleExact: the normalized query equals the normalized dish name.
	RuleExact MatchRule = "exact"
	// RuleContainment: one normalized string contains the other.
	RuleContainment MatchRule = "containment"
	// RuleOverlap: character overlap between the normalized strings is at
	// least OverlapThreshold.
	RuleOverlap MatchRule = "overlap"
)

// OverlapThreshold is the minimum character-overlap ratio for RuleOverlap.
const OverlapThreshold = 0.70

// Match is one ranked search result.
type Match struct {
	Dish  Dish
	Score float64
	Rule  MatchRule
}

// Search ranks available dishes against a spoken dish name. Scoring, highest
// first:
//
//	exact normalized match        score 1.0
//	containment either direction  score 0.80 + 0.15 * len(shorter)/len(longer)
//	character overlap >= 0.70     score = overlap ratio, capped below containment
//
// Results are sorted by score, then name, so ranking is deterministic.
// Unavailable dishes never match. limit <= 0 means no limit.
func (c *Catalog) Search(query string, limit int) []Match {
	nq := Normalize(query)
	if nq == "" {
		return nil
	}

	c.mu.RLock()
	dishes := make([]Dish, len(c.dishes))
	copy(dishes, c.dishes)
	c.mu.RUnlock()

	matches := make([]Match, 0, 4)
	for _, d := range dishes {
		if !d.Available {
			continue
		}
		nd := Normalize(d.Name)
		if nd == "" {
			continue
		}

		switch {
		case nd == nq:
			matches = append(matches, Match{Dish: d, Score: 1.0, Rule: RuleExact})
		case strings.Contains(nd, nq) || strings.Contains(nq, nd):
			shorter, longer := len(nq), len(nd)
			if shorter > longer {
				shorter, longer = longer, shorter
			}
			score := 0.80 + 0.15*float64(shorter)/float64(longer)
			matches = append(matches, Match{Dish: d, Score: score, Rule: RuleContainment})
		default:
			if ov := charOverlap(nq, nd); ov >= OverlapThreshold {
				score := ov
				if score > 0.79 {
					score = 0.79
				}
				matches = append(matches, Match{Dish: d, Score: score, Rule: RuleOverlap})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Dish.Name < matches[j].Dish.Name
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Best returns the single highest-ranked match for a spoken dish name.
func (c *Catalog) Best(query string) (Match, bool) {
	res := c.Search(query, 1)
	if len(res) == 0 {
		return Match{}, false
	}
	return res[0], true
}

// Normalize lowercases, strips everything but letters/digits/spaces, and
// collapses runs of whitespace. Speech transcription is noisy; matching runs
// entirely over this normalized form.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r), r == '-', r == '_':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// charOverlap returns the multiset character overlap between two normalized
// strings, as a fraction of the longer one. Spaces are ignored.
func charOverlap(a, b string) float64 {
	countA := charCounts(a)
	countB := charCounts(b)

	common := 0
	for r, n := range countA {
		if m, ok := countB[r]; ok {
			if m < n {
				n = m
			}
			common += n
		}
	}

	la, lb := 0, 0
	for _, n := range countA {
		la += n
	}
	for _, n := range countB {
		lb += n
	}
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 0
	}
	return float64(common) / float64(longer)
}

func charCounts(s string) map[rune]int {
	counts := make(map[rune]int, len(s))
	for _, r := range s {
		if r == ' ' {
			continue
		}
		counts[r]++
	}
	return counts
}
