// reconcile.go - Forcing line items to agree with the trusted total

package recon

import (
	"fmt"

	"github.com/domusplus/receipt-engine/internal/money"
)

// reconcileThresholdCents is the default gap below which the item sum and
// the printed total are considered to agree. Configurable per deployment.
const reconcileThresholdCents = 50

// ReconciledReceipt is the engine's final answer: the item list after
// placeholder insertion and adjustment, the total the caller should trust,
// and enough provenance to explain how the numbers were forced to agree.
type ReconciledReceipt struct {
	Items            []LineItem `json:"items"`
	TotalCents       int64      `json:"total_cents"`
	TotalTrusted     bool       `json:"total_trusted"`
	ItemSumCents     int64      `json:"item_sum_cents"`
	AdjustmentCents  int64      `json:"adjustment_cents"`
	PlaceholderCount int        `json:"placeholder_count"`
	TotalSourceLine  string     `json:"total_source_line,omitempty"`
}

// Reconcile makes the item list sum to the selected total. It first fills
// any shortfall against the declared item count with zero-valued placeholder
// lines, then, when the gap exceeds the threshold, closes it with a single
// signed adjustment line carrying the whole difference. With no trusted
// total it falls back to the raw item sum and says so.
func Reconcile(items []LineItem, total TotalsCandidate, haveTotal bool, thresholdCents int64) ReconciledReceipt {
	if thresholdCents <= 0 {
		thresholdCents = reconcileThresholdCents
	}

	itemSum := SumItems(items)

	if !haveTotal {
		return ReconciledReceipt{
			Items:        items,
			TotalCents:   itemSum,
			TotalTrusted: false,
			ItemSumCents: itemSum,
		}
	}

	rec := ReconciledReceipt{
		Items:           items,
		TotalCents:      total.AmountCents,
		TotalTrusted:    true,
		ItemSumCents:    itemSum,
		TotalSourceLine: total.SourceLine,
	}

	// Unread lines first: when the printer declared more items than were
	// read, mark them with interleaved placeholders. Placeholders carry no
	// amount; the adjustment line below accounts for the money.
	missing := total.DeclaredItemCount - countDeclarable(items)
	if missing > 0 {
		rec.Items = insertPlaceholders(rec.Items, missing)
		rec.PlaceholderCount = missing
	}

	gap := total.AmountCents - itemSum
	if abs64(gap) <= thresholdCents {
		return rec
	}

	rec.Items = append(rec.Items, adjustmentItem(gap, rec.PlaceholderCount))
	rec.AdjustmentCents = gap
	rec.ItemSumCents = SumItems(rec.Items)
	return rec
}

// countDeclarable counts the lines a printer's article counter would have
// counted: real items and cancellations, not discounts or promotions.
func countDeclarable(items []LineItem) int {
	n := 0
	for _, it := range items {
		switch it.Kind {
		case KindItem, KindCancel, KindPlaceholder:
			n++
		}
	}
	return n
}

// insertPlaceholders adds n zero-valued placeholder lines, interleaved
// through the list rather than appended. Missed lines come from anywhere an
// overlap cut or a glare band fell, so position i lands at (i+1)*len/(n+1).
func insertPlaceholders(items []LineItem, n int) []LineItem {
	base := len(items)
	out := make([]LineItem, 0, base+n)
	out = append(out, items...)
	for i := 0; i < n; i++ {
		// i accounts for the placeholders already inserted ahead of
		// this position.
		pos := (i+1)*base/(n+1) + i
		ph := LineItem{
			RawText:   "ARTICULO NO LEGIBLE",
			TotalText: money.IllegibleSentinel,
			Kind:      KindPlaceholder,
			Illegible: true,
		}
		out = append(out[:pos], append([]LineItem{ph}, out[pos:]...)...)
	}
	return out
}

// adjustmentItem closes the gap with one labelled line. A positive gap means
// unlisted charges, a negative one unlisted promotions or discounts; the
// label says which, and how many placeholder lines it covers, so the
// adjustment is auditable.
func adjustmentItem(gap int64, placeholders int) LineItem {
	label := "AJUSTE: renglones no legibles"
	if placeholders > 0 {
		label = fmt.Sprintf("AJUSTE: %d renglones no legibles", placeholders)
	}
	if gap < 0 {
		label = "AJUSTE: promociones/descuentos no listados"
	}
	return LineItem{
		RawText:    fmt.Sprintf("%s (%s)", label, money.FormatCents(gap)),
		Kind:       KindAdjustment,
		TotalCents: gap,
	}
}
