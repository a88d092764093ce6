// errors.go - Provider error classification and retry

package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/domusplus/receipt-engine/internal/common"
	"google.golang.org/api/googleapi"
)

// Error is a categorized provider failure. Category drives retry and HTTP
// mapping; Hint is safe to show to the caller.
type Error struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Hint          string
	Retryable     bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *Error) Unwrap() error {
	return e.OriginalError
}

// Hard reports whether the failure dooms the whole request rather than one
// segment. Quota and credential problems will fail every remaining call the
// same way, so retrying other segments only burns quota.
func (e *Error) Hard() bool {
	switch e.Category {
	case "quota_exceeded", "unauthorized", "forbidden", "not_found":
		return true
	}
	return false
}

// Classify analyzes a provider error and decides its retry strategy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}

	visionErr := &Error{
		OriginalError: err,
		Category:      "unknown",
		Message:       err.Error(),
		Hint:          "An unexpected error occurred. Please try again.",
		Retryable:     false,
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		visionErr.StatusCode = apiErr.Code
		return classifyStatus(visionErr, apiErr.Code, apiErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		visionErr.Category = "timeout"
		visionErr.Message = "Request timeout - processing took too long"
		visionErr.Hint = "The image took too long to process. Try again or use fast mode."
		visionErr.Retryable = true
		return visionErr
	}
	if errors.Is(err, context.Canceled) {
		visionErr.Category = "canceled"
		visionErr.Message = "Request was canceled"
		visionErr.Retryable = false
		return visionErr
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "resource exhausted"):
		visionErr.Category = "quota_exceeded"
		visionErr.Message = "API quota exceeded"
		visionErr.Hint = "Daily API quota exceeded. Try again later."
		visionErr.Retryable = false
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		visionErr.Category = "timeout"
		visionErr.Message = "Request timeout"
		visionErr.Hint = "The image took too long to process. Try again."
		visionErr.Retryable = true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		visionErr.Category = "network_error"
		visionErr.Message = "Network connection error"
		visionErr.Hint = "Connection issue reaching the vision service. Try again."
		visionErr.Retryable = true
	}
	return visionErr
}

// classifyStatus maps an HTTP status from any provider onto a category.
// Gemini surfaces these through googleapi.Error, the OpenAI client reads
// them straight off the response.
func classifyStatus(visionErr *Error, code int, apiMsg string) *Error {
	visionErr.StatusCode = code
	switch code {
	case 400:
		visionErr.Category = "bad_request"
		visionErr.Message = "Invalid request format or parameters"
	case 401:
		visionErr.Category = "unauthorized"
		visionErr.Message = "Invalid API key or authentication failed"
		visionErr.Hint = "Vision service authentication failed. Contact the administrator."
	case 403:
		visionErr.Category = "forbidden"
		visionErr.Message = "API key lacks required permissions"
		visionErr.Hint = "Vision service authentication failed. Contact the administrator."
	case 404:
		visionErr.Category = "not_found"
		visionErr.Message = "Model not found or invalid endpoint"
	case 413:
		visionErr.Category = "payload_too_large"
		visionErr.Message = "Request size exceeds limit"
		visionErr.Hint = "Image too large. Upload a smaller photo."
	case 429:
		visionErr.Category = "rate_limit"
		visionErr.Message = "Rate limit exceeded - too many requests"
		visionErr.Hint = "Too many requests. Wait a moment and try again."
		visionErr.Retryable = true
	case 500, 502, 503, 504:
		visionErr.Category = "server_error"
		visionErr.Message = fmt.Sprintf("Vision service server error (%d)", code)
		visionErr.Hint = "The vision service is temporarily unavailable. Try again shortly."
		visionErr.Retryable = true
	default:
		visionErr.Category = "unknown_api_error"
		visionErr.Message = fmt.Sprintf("API error: %s", apiMsg)
		visionErr.Retryable = code >= 500
	}
	return visionErr
}

// RetryConfig defines retry behavior for provider calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// withRetry runs a provider call with classification-driven retries and
// exponential backoff. Non-retryable errors fail immediately; rate limits
// get double the computed delay.
func withRetry(ctx context.Context, rc *common.RequestContext, config RetryConfig, call func() error) error {
	var lastErr *Error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			rc.LogInfo("Retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		err := call()
		if err == nil {
			if attempt > 1 {
				rc.LogInfo("✅ Retry succeeded on attempt %d", attempt)
			}
			return nil
		}

		lastErr = Classify(err)
		rc.LogError("Provider call failed (attempt %d/%d): %s", attempt, config.MaxAttempts, lastErr.Error())

		if !lastErr.Retryable {
			return lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)
		if lastErr.Category == "rate_limit" {
			delay *= 2
			rc.LogWarning("Rate limit hit, waiting %v before retry", delay)
		} else {
			rc.LogInfo("Waiting %v before retry", delay)
		}

		select {
		case <-ctx.Done():
			return Classify(ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("provider call failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= config.BackoffMultiple
	}
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
