// factory.go - Provider selection

package vision

import (
	"context"
	"fmt"
	"log"

	"github.com/domusplus/receipt-engine/configs"
)

// NewProvider builds the configured vision provider.
func NewProvider(ctx context.Context, cfg *configs.Config) (Provider, error) {
	switch cfg.VisionProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		log.Printf("🤖 Vision provider: gemini (fast=%s, precise=%s)", cfg.GeminiModelFast, cfg.GeminiModelPrecise)
		return NewGeminiProvider(ctx, cfg)

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		log.Printf("🤖 Vision provider: openai (model=%s)", cfg.OpenAIModel)
		return NewOpenAIProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown vision provider %q (expected gemini or openai)", cfg.VisionProvider)
	}
}
