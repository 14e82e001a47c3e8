package generation

import (
	"context"

	"evofit/health-protocol/internal/domain"
)

// TemplateClient is used when no AI provider is configured. It returns the
// template outline unchanged.
type TemplateClient struct{}

func (TemplateClient) Generate(ctx context.Context, p Prompt) (domain.ProtocolContent, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProtocolContent{}, err
	}
	sections := make([]domain.Section, len(p.Outline))
	for i, s := range p.Outline {
		sections[i] = domain.Section{Title: s.Title, Items: append([]string(nil), s.Items...)}
	}
	return domain.ProtocolContent{
		Source:   domain.SourceTemplate,
		Summary:  p.Description,
		Sections: sections,
	}, nil
}
