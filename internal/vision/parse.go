// parse.go - Decoding model responses

package vision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CarveJSON extracts the JSON object from a model response. Models wrap
// output in markdown fences or prose despite instructions, so carve from the
// first '{' to the last '}' after stripping fences.
func CarveJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in response (%d chars)", len(raw))
	}
	return s[start : end+1], nil
}

// FlexibleInt tolerates a count arriving as a JSON number, a numeric string,
// or absent. Models switch between "15" and 15 unpredictably.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if dot := strings.IndexByte(s, '.'); dot != -1 {
		s = s[:dot]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexibleInt(n)
	return nil
}

type itemsPayload struct {
	Items    []LineItemRaw `json:"items"`
	Merchant string        `json:"merchant"`
	Date     string        `json:"date"`
	Currency string        `json:"currency"`
}

// DecodeItems parses a structured item extraction response.
func DecodeItems(raw string) (*ItemExtraction, error) {
	carved, err := CarveJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload itemsPayload
	if err := json.Unmarshal([]byte(carved), &payload); err != nil {
		return nil, fmt.Errorf("malformed items JSON: %w", err)
	}
	return &ItemExtraction{
		Items:    payload.Items,
		Merchant: strings.TrimSpace(payload.Merchant),
		Date:     strings.TrimSpace(payload.Date),
		Currency: strings.TrimSpace(payload.Currency),
	}, nil
}

type totalsPayload struct {
	Total             string      `json:"total"`
	Subtotal          string      `json:"subtotal"`
	Tax               string      `json:"tax"`
	TotalLine         string      `json:"total_line"`
	DeclaredItemCount FlexibleInt `json:"declared_item_count"`
}

// DecodeTotals parses a footer totals response.
func DecodeTotals(raw string) (*TotalsReading, error) {
	carved, err := CarveJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload totalsPayload
	if err := json.Unmarshal([]byte(carved), &payload); err != nil {
		return nil, fmt.Errorf("malformed totals JSON: %w", err)
	}
	return &TotalsReading{
		Total:             strings.TrimSpace(payload.Total),
		Subtotal:          strings.TrimSpace(payload.Subtotal),
		Tax:               strings.TrimSpace(payload.Tax),
		TotalLine:         strings.TrimSpace(payload.TotalLine),
		DeclaredItemCount: int(payload.DeclaredItemCount),
	}, nil
}
