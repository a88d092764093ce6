// item.go - Line items and transcript-to-item recovery

package recon

import (
	"strings"

	"github.com/domusplus/receipt-engine/internal/money"
)

// LineItem is one reconciled receipt line. TotalCents is the line's signed
// contribution to the receipt sum; reversal kinds always contribute zero or
// a negative amount regardless of how the printer rendered the sign.
type LineItem struct {
	RawText       string   `json:"raw_text"`
	QuantityText  string   `json:"quantity_text,omitempty"`
	UnitPriceText string   `json:"unit_price_text,omitempty"`
	TotalText     string   `json:"total_text,omitempty"`
	Kind          LineKind `json:"kind"`
	TotalCents    int64    `json:"total_cents"`
	Illegible     bool     `json:"illegible,omitempty"`
}

// NewLineItem builds a line item from extracted text fields, classifying the
// line and parsing its total. An unreadable total marks the item illegible
// with a zero contribution; it stays in the list so reconciliation can count
// it against the declared item count.
func NewLineItem(rawText, quantityText, unitPriceText, totalText string) LineItem {
	kind := ClassifyLine(rawText)
	cents := money.ParseToCents(totalText)

	illegible := cents == 0 && !isExplicitZero(totalText)
	if kind.ForcesNegative() && cents > 0 {
		cents = -cents
	}

	return LineItem{
		RawText:       strings.TrimSpace(rawText),
		QuantityText:  strings.TrimSpace(quantityText),
		UnitPriceText: strings.TrimSpace(unitPriceText),
		TotalText:     strings.TrimSpace(totalText),
		Kind:          kind,
		TotalCents:    cents,
		Illegible:     illegible,
	}
}

// isExplicitZero distinguishes a printed zero amount from a total that
// failed to parse. "0.00" is a legitimate line total on voided items.
func isExplicitZero(totalText string) bool {
	s := strings.TrimSpace(totalText)
	if s == "" {
		return false
	}
	sawDigit := false
	for _, ch := range s {
		switch {
		case ch == '0', ch == '.', ch == ',', ch == '$', ch == ' ', ch == '-':
			if ch == '0' {
				sawDigit = true
			}
		default:
			return false
		}
	}
	return sawDigit
}

// totalsNoiseKeywords marks transcript lines that carry amounts but are not
// line items: totals, taxes, tender and change. Counting these as items
// would double the receipt sum on the fallback path.
var totalsNoiseKeywords = []string{
	"TOTAL", "SUB-TOTAL", "IMPORTE", "A PAGAR", "IVA", "IEPS",
	"EFECTIVO", "CAMBIO", "TARJETA", "PROPINA", "SU PAGO",
}

// ItemsFromTranscript recovers line items from a raw transcription when
// structured extraction was unavailable. Each transcript line contributes at
// most one item, using the last money-shaped token as its total. Lines with
// no amount and footer lines (totals, tax, tender) are dropped.
func ItemsFromTranscript(transcript string) []LineItem {
	var items []LineItem
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsAny(strings.ToUpper(line), totalsNoiseKeywords) {
			continue
		}
		amount := money.LastAmountInText(line)
		if amount == "" {
			continue
		}
		items = append(items, NewLineItem(line, "", "", amount))
	}
	return items
}

// TotalsCandidatesFromTranscript scans a transcription for footer lines that
// look like totals declarations, for the selector to score alongside the
// dedicated footer reading. Each matching line yields one candidate.
func TotalsCandidatesFromTranscript(transcript, source string) []TotalsCandidate {
	var cands []TotalsCandidate
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if !containsAny(upper, totalKeywords) {
			continue
		}
		amount := money.LastAmountInText(line)
		if amount == "" {
			continue
		}
		cents := money.ParseToCents(amount)
		if cents <= 0 {
			continue
		}
		cands = append(cands, TotalsCandidate{
			AmountCents: cents,
			SourceLine:  line,
			Source:      source,
		})
	}
	return cands
}
