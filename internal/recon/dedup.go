// dedup.go - Cross-segment overlap removal

package recon

import "strings"

// Overlap windows. Segments are cut with a few hundred pixels of shared
// image, so duplicated lines sit near the head of the later segment and the
// tail of what has been accumulated so far.
const (
	dedupHeadWindow = 45
	dedupTailWindow = 60
)

// Acceptance thresholds for the fuzzy arm of duplicate detection.
const (
	dedupSimilarityMin    = 0.90
	dedupAmountToleranceC = 100  // cents
	dedupAmountToleranceP = 0.03 // fraction of the larger amount
)

// MergeSegments concatenates per-segment item lists in segment order while
// removing the lines the overlap cut duplicated, reporting how many it
// removed. Only the head of each incoming segment is checked against the
// tail of the accumulated list; a genuine repeat purchase deep inside a
// segment is never touched.
func MergeSegments(segments [][]LineItem) ([]LineItem, int) {
	var merged []LineItem
	removed := 0
	for _, seg := range segments {
		var n int
		merged, n = appendDeduped(merged, seg)
		removed += n
	}
	return merged, removed
}

func appendDeduped(acc, incoming []LineItem) ([]LineItem, int) {
	if len(acc) == 0 {
		return append(acc, incoming...), 0
	}

	tailStart := len(acc) - dedupTailWindow
	if tailStart < 0 {
		tailStart = 0
	}
	tail := acc[tailStart:]

	removed := 0
	for i, item := range incoming {
		if i >= dedupHeadWindow {
			acc = append(acc, incoming[i:]...)
			break
		}
		if isDuplicateOf(item, tail) {
			removed++
			continue
		}
		acc = append(acc, item)
	}
	return acc, removed
}

func isDuplicateOf(item LineItem, tail []LineItem) bool {
	norm := normalizeLine(item.RawText)
	if norm == "" {
		return false
	}
	for _, prev := range tail {
		prevNorm := normalizeLine(prev.RawText)
		if prevNorm == "" {
			continue
		}
		if norm == prevNorm {
			return true
		}
		if lineSimilarity(norm, prevNorm) >= dedupSimilarityMin &&
			amountsComparable(item.TotalCents, prev.TotalCents) {
			return true
		}
	}
	return false
}

// normalizeLine collapses a raw line to uppercase alphanumerics so spacing,
// punctuation and casing differences between two reads of the same printed
// line do not defeat the exact-match arm.
func normalizeLine(raw string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(raw) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// amountsComparable accepts two totals as reads of the same line when they
// differ by at most 100 cents or 3% of the larger magnitude, whichever is
// greater. The model occasionally misreads a single digit across segments.
func amountsComparable(a, b int64) bool {
	diff := abs64(a - b)
	larger := abs64(a)
	if ab := abs64(b); ab > larger {
		larger = ab
	}
	tolerance := int64(dedupAmountToleranceC)
	if pct := int64(float64(larger) * dedupAmountToleranceP); pct > tolerance {
		tolerance = pct
	}
	return diff <= tolerance
}

// lineSimilarity is a normalized Levenshtein ratio in [0,1].
func lineSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := 0; j <= len(s2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
