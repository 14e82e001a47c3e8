package generation

import (
	"context"
	"fmt"
	"strings"

	"evofit/health-protocol/internal/config"
	"evofit/health-protocol/internal/logger"
)

// New picks the client named by cfg.Provider.
func New(ctx context.Context, cfg config.GenerationConfig, log *logger.Logger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIClient(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, log)
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.Timeout, log)
	case "", "template", "none":
		return TemplateClient{}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
