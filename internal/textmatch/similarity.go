package textmatch

import (
	"github.com/xrash/smetrics"
)

// MinSimilarityLen is the shortest folded input, in runes, for which
// Similarity reports anything but zero.
const MinSimilarityLen = 5

// Similarity returns a normalized edit-distance similarity in [0,1]:
// 1 - levenshtein(a, b) / max(len(a), len(b)).
//
// Both inputs are folded first. The score is computed on the full strings and
// again with both truncated to the shorter one's length, and the greater value
// wins, so a subject that is a long extension of a title is not penalized for
// the length difference alone.
func Similarity(a, b string) float64 {
	ra, rb := []rune(Fold(a)), []rune(Fold(b))
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	if shorter < MinSimilarityLen {
		return 0
	}

	full := ratio(ra, rb)
	truncated := ratio(ra[:shorter], rb[:shorter])
	if truncated > full {
		return truncated
	}
	return full
}

func ratio(a, b []rune) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	d := smetrics.WagnerFischer(string(a), string(b), 1, 1, 1)
	s := 1 - float64(d)/float64(longest)
	if s < 0 {
		return 0
	}
	return s
}
