// classify.go - Keyword classification of transcript lines

package recon

import "strings"

// LineKind tags what role a receipt line plays during reconciliation.
type LineKind string

const (
	KindItem        LineKind = "item"
	KindDiscount    LineKind = "discount"
	KindPriceChange LineKind = "price_change"
	KindCancel      LineKind = "cancellation"
	KindPlaceholder LineKind = "placeholder"
	KindAdjustment  LineKind = "adjustment"
)

// Keyword tables for the classifier. Receipts in this corpus are printed in
// Spanish; the tables match the strings supermarket printers actually emit.
var (
	cancelKeywords      = []string{"CANCEL", "ANULA", "VOID"}
	discountKeywords    = []string{"DESCU", "DSCTO", "DTO", "REBAJA", "AHORRO", "CUPON"}
	priceChangeKeywords = []string{"PROMOC", "OFERTA", "CAMBIO PRECIO", "PRECIO ESP"}
)

// ClassifyLine decides a line's kind from its raw text. Classification is
// keyword-driven and case-insensitive; a line matching no table is a regular
// item. Cancellation wins over discount when both match, since a cancelled
// discount line reverses like any other cancelled line.
func ClassifyLine(rawText string) LineKind {
	upper := strings.ToUpper(rawText)
	if containsAny(upper, cancelKeywords) {
		return KindCancel
	}
	if containsAny(upper, discountKeywords) {
		return KindDiscount
	}
	if containsAny(upper, priceChangeKeywords) {
		return KindPriceChange
	}
	return KindItem
}

// ForcesNegative reports whether a kind must carry a non-positive total.
// Printers sometimes omit the trailing minus on reversal lines; the kind is
// the stronger signal.
func (k LineKind) ForcesNegative() bool {
	switch k {
	case KindDiscount, KindPriceChange, KindCancel:
		return true
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
