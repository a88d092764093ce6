// provider.go - Vision provider abstraction

package vision

import (
	"context"

	"github.com/domusplus/receipt-engine/internal/common"
)

// Segment is one image strip handed to a provider, already encoded.
type Segment struct {
	Data     []byte
	MIMEType string
	Index    int
}

// LineItemRaw is one extracted line exactly as the model read it. All fields
// are text; nothing downstream trusts the model to do arithmetic.
type LineItemRaw struct {
	RawLine   string `json:"raw_line"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// ItemExtraction is a structured read of one segment.
type ItemExtraction struct {
	Items    []LineItemRaw     `json:"items"`
	Merchant string            `json:"merchant,omitempty"`
	Date     string            `json:"date,omitempty"`
	Currency string            `json:"currency,omitempty"`
	Usage    common.TokenUsage `json:"-"`
}

// TotalsReading is what the footer-crop call saw: amounts stay text for the
// same reason item fields do.
type TotalsReading struct {
	Total             string            `json:"total"`
	Subtotal          string            `json:"subtotal"`
	Tax               string            `json:"tax"`
	TotalLine         string            `json:"total_line"`
	DeclaredItemCount int               `json:"declared_item_count"`
	Usage             common.TokenUsage `json:"-"`
}

// Provider is a vision-capable model behind a uniform surface. Every method
// honors context cancellation; callers set the deadline.
type Provider interface {
	// ExtractItems reads a segment into structured line items.
	ExtractItems(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (*ItemExtraction, error)

	// TranscribeText reads a segment as plain text, line per printed line.
	// The degraded path when structured extraction returns nothing usable.
	TranscribeText(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (string, error)

	// ExtractTotals reads a footer crop for the totals block.
	ExtractTotals(ctx context.Context, rc *common.RequestContext, seg Segment) (*TotalsReading, error)

	Name() string
	Close() error
}
