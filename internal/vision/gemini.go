// gemini.go - Gemini-backed vision provider

package vision

import (
	"context"
	"fmt"

	"github.com/domusplus/receipt-engine/configs"
	"github.com/domusplus/receipt-engine/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider reads receipt segments with Gemini models. One client is
// shared across requests; models are cheap per-call handles.
type GeminiProvider struct {
	client *genai.Client
	cfg    *configs.Config
}

// NewGeminiProvider creates the shared Gemini client.
func NewGeminiProvider(ctx context.Context, cfg *configs.Config) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) modelFor(mode common.Mode) string {
	if mode == common.ModeFast {
		return p.cfg.GeminiModelFast
	}
	return p.cfg.GeminiModelPrecise
}

// ExtractItems reads a segment into structured line items using a JSON
// response schema so the model cannot drift from the expected shape.
func (p *GeminiProvider) ExtractItems(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (*ItemExtraction, error) {
	model := p.client.GenerativeModel(p.modelFor(mode))
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptr(float32(0)),
		MaxOutputTokens: ptr(int32(8192)),
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = itemsSchema()

	resp, err := p.generate(ctx, rc, model, itemsPrompt, seg)
	if err != nil {
		return nil, err
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	result, err := DecodeItems(text)
	if err != nil {
		return nil, err
	}
	result.Usage = p.usageFrom(resp)
	return result, nil
}

// TranscribeText reads a segment as plain text, no schema.
func (p *GeminiProvider) TranscribeText(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (string, error) {
	model := p.client.GenerativeModel(p.modelFor(mode))
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptr(float32(0)),
		MaxOutputTokens: ptr(int32(8192)),
	}

	resp, err := p.generate(ctx, rc, model, transcribePrompt, seg)
	if err != nil {
		return "", err
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	rc.AddTokens(p.usageFrom(resp))
	return text, nil
}

// ExtractTotals reads a footer crop. Totals always use the precise model:
// the call is small and a misread total poisons the whole reconciliation.
func (p *GeminiProvider) ExtractTotals(ctx context.Context, rc *common.RequestContext, seg Segment) (*TotalsReading, error) {
	model := p.client.GenerativeModel(p.cfg.GeminiModelPrecise)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptr(float32(0)),
		MaxOutputTokens: ptr(int32(2048)),
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = totalsSchema()

	resp, err := p.generate(ctx, rc, model, totalsPrompt, seg)
	if err != nil {
		return nil, err
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	reading, err := DecodeTotals(text)
	if err != nil {
		return nil, err
	}
	reading.Usage = p.usageFrom(resp)
	return reading, nil
}

func (p *GeminiProvider) generate(ctx context.Context, rc *common.RequestContext, model *genai.GenerativeModel, prompt string, seg Segment) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := withRetry(ctx, rc, DefaultRetryConfig, func() error {
		var callErr error
		resp, callErr = model.GenerateContent(ctx,
			genai.Text(prompt),
			genai.Blob{
				MIMEType: seg.MIMEType,
				Data:     seg.Data,
			},
		)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// responseText concatenates the text parts of the first candidate. A
// truncated response is an error, not a partial answer; downstream JSON
// decoding would fail confusingly on it.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in Gemini response")
	}
	cand := resp.Candidates[0]

	var out string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("empty text from Gemini (FinishReason: %v)", cand.FinishReason)
	}
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		return "", fmt.Errorf("response truncated at max output tokens")
	}
	return out, nil
}

func (p *GeminiProvider) usageFrom(resp *genai.GenerateContentResponse) common.TokenUsage {
	if resp.UsageMetadata == nil {
		return common.TokenUsage{}
	}
	return common.CalculateTokenCost(
		int(resp.UsageMetadata.PromptTokenCount),
		int(resp.UsageMetadata.CandidatesTokenCount),
		p.cfg.InputPricePerMillion,
		p.cfg.OutputPricePerMillion,
	)
}

func itemsSchema() *genai.Schema {
	itemSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"raw_line": {
				Type:        genai.TypeString,
				Description: "Renglon completo tal como esta impreso",
			},
			"quantity": {
				Type:        genai.TypeString,
				Description: "Cantidad impresa, o cadena vacia",
			},
			"unit_price": {
				Type:        genai.TypeString,
				Description: "Precio unitario impreso, o cadena vacia",
			},
			"total": {
				Type:        genai.TypeString,
				Description: "Total del renglon tal como esta impreso, o 'no legible'",
			},
		},
		Required: []string{"raw_line", "total"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"items": {
				Type:  genai.TypeArray,
				Items: itemSchema,
			},
			"merchant": {Type: genai.TypeString},
			"date":     {Type: genai.TypeString},
			"currency": {Type: genai.TypeString},
		},
		Required: []string{"items"},
	}
}

func totalsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"total": {
				Type:        genai.TypeString,
				Description: "Total a pagar tal como esta impreso",
			},
			"subtotal":   {Type: genai.TypeString},
			"tax":        {Type: genai.TypeString},
			"total_line": {Type: genai.TypeString},
			"declared_item_count": {
				Type:        genai.TypeInteger,
				Description: "Numero de articulos declarado, 0 si no aparece",
			},
		},
		Required: []string{"total"},
	}
}

func ptr[T any](v T) *T { return &v }
