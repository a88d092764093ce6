// openai.go - OpenAI-backed vision provider

package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/domusplus/receipt-engine/configs"
	"github.com/domusplus/receipt-engine/internal/common"
)

// OpenAIProvider reads receipt segments through the chat completions API.
// Images travel as data URLs; the detail level follows the processing mode.
type OpenAIProvider struct {
	cfg        *configs.Config
	httpClient *http.Client
}

func NewOpenAIProvider(cfg *configs.Config) *OpenAIProvider {
	return &OpenAIProvider{
		cfg: cfg,
		// Per-call deadlines come from the request context; this is the
		// absolute ceiling for a hung connection.
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) ExtractItems(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (*ItemExtraction, error) {
	text, usage, err := p.complete(ctx, rc, itemsPrompt, seg, mode, true)
	if err != nil {
		return nil, err
	}
	result, err := DecodeItems(text)
	if err != nil {
		return nil, err
	}
	result.Usage = usage
	return result, nil
}

func (p *OpenAIProvider) TranscribeText(ctx context.Context, rc *common.RequestContext, seg Segment, mode common.Mode) (string, error) {
	text, usage, err := p.complete(ctx, rc, transcribePrompt, seg, mode, false)
	if err != nil {
		return "", err
	}
	rc.AddTokens(usage)
	return text, nil
}

func (p *OpenAIProvider) ExtractTotals(ctx context.Context, rc *common.RequestContext, seg Segment) (*TotalsReading, error) {
	text, usage, err := p.complete(ctx, rc, totalsPrompt, seg, common.ModePrecise, true)
	if err != nil {
		return nil, err
	}
	reading, err := DecodeTotals(text)
	if err != nil {
		return nil, err
	}
	reading.Usage = usage
	return reading, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) complete(ctx context.Context, rc *common.RequestContext, prompt string, seg Segment, mode common.Mode, wantJSON bool) (string, common.TokenUsage, error) {
	detail := "high"
	if mode == common.ModeFast {
		detail = "low"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", seg.MIMEType, base64.StdEncoding.EncodeToString(seg.Data))

	reqBody := chatRequest{
		Model: p.cfg.OpenAIModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: detail}},
			},
		}},
		Temperature: 0,
		MaxTokens:   8192,
	}
	if wantJSON {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var text string
	var usage common.TokenUsage
	err := withRetry(ctx, rc, DefaultRetryConfig, func() error {
		var callErr error
		text, usage, callErr = p.doRequest(ctx, reqBody)
		return callErr
	})
	return text, usage, err
}

func (p *OpenAIProvider) doRequest(ctx context.Context, reqBody chatRequest) (string, common.TokenUsage, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", common.TokenUsage{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", common.TokenUsage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.OpenAIAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", common.TokenUsage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", common.TokenUsage{}, err
	}

	if resp.StatusCode != http.StatusOK {
		apiMsg := string(body)
		var parsed chatResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			apiMsg = parsed.Error.Message
		}
		return "", common.TokenUsage{}, classifyStatus(&Error{
			OriginalError: fmt.Errorf("openai: status %d: %s", resp.StatusCode, apiMsg),
			Message:       apiMsg,
			Hint:          "An unexpected error occurred. Please try again.",
		}, resp.StatusCode, apiMsg)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", common.TokenUsage{}, fmt.Errorf("malformed completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", common.TokenUsage{}, fmt.Errorf("no choices in completion response")
	}
	if parsed.Choices[0].FinishReason == "length" {
		return "", common.TokenUsage{}, fmt.Errorf("response truncated at max output tokens")
	}

	usage := common.CalculateTokenCost(
		parsed.Usage.PromptTokens,
		parsed.Usage.CompletionTokens,
		p.cfg.InputPricePerMillion,
		p.cfg.OutputPricePerMillion,
	)
	return parsed.Choices[0].Message.Content, usage, nil
}
