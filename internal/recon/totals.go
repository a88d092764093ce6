// totals.go - Selecting the trusted grand total

package recon

import "strings"

// TotalsCandidate is one possible grand total with whatever context came
// with it. Footer readings carry subtotal, tax and a declared item count;
// candidates scraped from transcripts usually carry only the amount.
type TotalsCandidate struct {
	AmountCents       int64  `json:"amount_cents"`
	SourceLine        string `json:"source_line,omitempty"`
	SubtotalCents     int64  `json:"subtotal_cents,omitempty"`
	TaxCents          int64  `json:"tax_cents,omitempty"`
	DeclaredItemCount int    `json:"declared_item_count,omitempty"`
	Source            string `json:"source,omitempty"`
}

// totalKeywords are the footer labels that name the grand total on receipts
// in this corpus. A candidate whose source line carries one outranks every
// candidate that does not.
var totalKeywords = []string{"TOTAL", "A PAGAR", "IMPORTE"}

const (
	totalKeywordBonus  = -1e7
	integerPenalty     = 50.0
	sumTiebreakWeight  = 0.01
	footerSourceWeight = -1e3
)

// SourceFooter marks candidates read from the dedicated footer-crop call.
const SourceFooter = "footer"

// SelectTotal scores candidates and returns the most trustworthy one, lower
// score winning. Returns false when no candidate survives: a candidate below
// the largest single item total cannot be a grand total and is rejected
// outright.
//
// The score stacks, in decreasing weight: a keyword bonus when the source
// line names a total, a footer-source bonus, the absolute gap between the
// candidate and subtotal+tax when both are present, a small tiebreak toward
// the sum of item lines, and a penalty for round integer amounts (misread
// decimal points produce those).
func SelectTotal(candidates []TotalsCandidate, items []LineItem) (TotalsCandidate, bool) {
	itemSum := SumItems(items)
	maxItem := maxItemTotal(items)

	best := TotalsCandidate{}
	bestScore := 0.0
	found := false

	for _, cand := range candidates {
		if cand.AmountCents <= 0 {
			continue
		}
		if cand.AmountCents < maxItem {
			continue
		}
		score := scoreCandidate(cand, itemSum)
		if !found || score < bestScore {
			best = cand
			bestScore = score
			found = true
		}
	}
	return best, found
}

func scoreCandidate(cand TotalsCandidate, itemSum int64) float64 {
	score := 0.0

	if hasTotalKeyword(cand.SourceLine) {
		score += totalKeywordBonus
	}
	if cand.Source == SourceFooter {
		score += footerSourceWeight
	}
	// Only meaningful when both legs of subtotal+tax were read; a receipt
	// without a printed tax line would punish its own correct total.
	if cand.SubtotalCents > 0 && cand.TaxCents > 0 {
		expected := cand.SubtotalCents + cand.TaxCents
		score += float64(abs64(cand.AmountCents - expected))
	}

	score += sumTiebreakWeight * float64(abs64(cand.AmountCents-itemSum))

	if cand.AmountCents%100 == 0 {
		score += integerPenalty
	}
	return score
}

func hasTotalKeyword(sourceLine string) bool {
	if sourceLine == "" {
		return false
	}
	upper := strings.ToUpper(sourceLine)
	if strings.Contains(upper, "SUBTOTAL") || strings.Contains(upper, "SUB-TOTAL") {
		return false
	}
	return containsAny(upper, totalKeywords)
}

// SumItems is the signed sum of item contributions in cents.
func SumItems(items []LineItem) int64 {
	var sum int64
	for _, it := range items {
		sum += it.TotalCents
	}
	return sum
}

func maxItemTotal(items []LineItem) int64 {
	var max int64
	for _, it := range items {
		if it.TotalCents > max {
			max = it.TotalCents
		}
	}
	return max
}
