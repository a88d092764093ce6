// request_context.go - Request tracking and logging system

package common

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestContext tracks the entire request lifecycle with timing and costs.
// Segment calls run concurrently, so token accounting is mutex-guarded.
type RequestContext struct {
	RequestID        string
	UserID           string
	StartTime        time.Time
	Steps            []StepLog
	TotalTokens      TokenUsage
	CurrentStep      string
	CurrentStepStart time.Time

	mu sync.Mutex
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string      `json:"name"`
	StartTime time.Time   `json:"start_time"`
	Duration  int64       `json:"duration_ms"`
	Status    string      `json:"status"` // "success", "failed", "skipped"
	Tokens    *TokenUsage `json:"tokens,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// TokenUsage tracks API token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// NewRequestContext creates a new request tracking context
func NewRequestContext(userID string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] 🚀 New receipt request | UserID: %s | %s", reqID, userID, now.Format("15:04:05"))

	return &RequestContext{
		RequestID: reqID,
		UserID:    userID,
		StartTime: now,
		Steps:     []StepLog{},
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()
	log.Printf("[%s] ┌── %s", rc.RequestID, stepName)
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] └── ❌ %s failed (%.2fs): %v",
			rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		if tokens != nil {
			rc.AddTokens(*tokens)
			log.Printf("[%s] └── ✅ %s (%.2fs) | 🪙 %d in + %d out",
				rc.RequestID, rc.CurrentStep, float64(duration)/1000,
				tokens.InputTokens, tokens.OutputTokens)
		} else {
			log.Printf("[%s] └── ✅ %s (%.2fs)", rc.RequestID, rc.CurrentStep, float64(duration)/1000)
		}
	}

	rc.mu.Lock()
	rc.Steps = append(rc.Steps, stepLog)
	rc.mu.Unlock()
	rc.CurrentStep = ""
}

// AddTokens accumulates token usage from a single provider call. Safe to call
// from concurrent segment goroutines.
func (rc *RequestContext) AddTokens(tokens TokenUsage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.TotalTokens.InputTokens += tokens.InputTokens
	rc.TotalTokens.OutputTokens += tokens.OutputTokens
	rc.TotalTokens.TotalTokens += tokens.TotalTokens
	rc.TotalTokens.CostUSD += tokens.CostUSD
}

// CalculateTokenCost computes USD cost from token counts and per-million prices
func CalculateTokenCost(inputTokens, outputTokens int, inputPricePerMillion, outputPricePerMillion float64) TokenUsage {
	inputCost := float64(inputTokens) * inputPricePerMillion / 1_000_000
	outputCost := float64(outputTokens) * outputPricePerMillion / 1_000_000

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      inputCost + outputCost,
	}
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()

	rc.mu.Lock()
	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}
	tokens := rc.TotalTokens
	stepCount := len(rc.Steps)
	rc.mu.Unlock()

	log.Printf("[%s] ═══ ⏱️  %.2fs total | steps: %d | 🪙 tokens: %d | 💰 $%.4f ═══",
		rc.RequestID, float64(totalDuration)/1000, stepCount, tokens.TotalTokens, tokens.CostUSD)

	return map[string]interface{}{
		"request_id":         rc.RequestID,
		"user_id":            rc.UserID,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        stepCount,
		"token_usage": map[string]interface{}{
			"input_tokens":  tokens.InputTokens,
			"output_tokens": tokens.OutputTokens,
			"total_tokens":  tokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", tokens.CostUSD),
		},
	}
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ℹ️  %s", rc.RequestID, msg)
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ⚠️  %s", rc.RequestID, msg)
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ❌ %s", rc.RequestID, msg)
}
