package bank

import (
	"math"

	"github.com/agnivade/levenshtein"
)

// partialRatio scores how well the shorter string matches its best-aligned
// window of the longer one, on a 0-100 scale.
func partialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	short := string(ra)
	n := len(ra)
	best := 0
	for start := 0; start+n <= len(rb); start++ {
		score := ratio(short, string(rb[start:start+n]), n)
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratio(a, b string, maxLen int) int {
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

type scored struct {
	bank  string
	score int
}

// bestFuzzy folds over the table and returns the highest scoring bank.
// Ties keep the earlier bank.
func bestFuzzy(t *table, lowered string) scored {
	best := scored{}
	for _, b := range t.banks {
		s := 0
		for _, p := range b.patterns {
			if v := partialRatio(p.lowered, lowered); v > s {
				s = v
			}
		}
		if s > best.score {
			best = scored{bank: b.id, score: s}
		}
	}
	return best
}
