package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"

	"google.golang.org/genai"
)

type geminiClient struct {
	log     *logger.Logger
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient builds a client for Google's Gemini API.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, log *logger.Logger) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiClient{
		log:     log.With("service", "GeminiGeneration"),
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

func (c *geminiClient) Generate(ctx context.Context, p Prompt) (domain.ProtocolContent, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt(p)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		c.log.Warn("Gemini generation failed", "model", c.model, "error", err.Error())
		return domain.ProtocolContent{}, err
	}
	return parseContent(resp.Text(), c.model)
}
