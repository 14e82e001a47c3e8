// Package generation talks to the external AI service that personalises
// protocol content. Callers must treat every call as slow and fallible.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"evofit/health-protocol/internal/domain"
)

// Prompt is the structured payload sent for one generation.
type Prompt struct {
	TemplateID   string              `json:"templateId"`
	TemplateName string              `json:"templateName"`
	Description  string              `json:"description"`
	Outline      []domain.Section    `json:"outline,omitempty"`
	Type         domain.ProtocolType `json:"type"`
	DurationDays int                 `json:"durationDays"`
	Intensity    domain.Intensity    `json:"intensity"`
	Health       domain.HealthInfo   `json:"health"`
	Conditions   []string            `json:"conditions,omitempty"`
	Medications  []string            `json:"medications,omitempty"`
	Preferences  map[string]string   `json:"preferences,omitempty"`
	Notes        string              `json:"notes,omitempty"`
}

// Client generates protocol content from a prompt.
type Client interface {
	Generate(ctx context.Context, p Prompt) (domain.ProtocolContent, error)
}

const systemPrompt = `You are a certified health coach assistant writing client protocols for a personal trainer.
Respect every listed medical condition and medication. Never give dosing advice for prescription drugs.
Answer with JSON only: {"summary": string, "sections": [{"title": string, "items": [string]}]}.`

// userPrompt renders the prompt deterministically so identical input produces
// identical requests.
func userPrompt(p Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s (%s)\n", p.TemplateName, p.TemplateID)
	if p.Description != "" {
		fmt.Fprintf(&b, "Template description: %s\n", p.Description)
	}
	fmt.Fprintf(&b, "Protocol type: %s\nDuration: %d days\nIntensity: %s\n", p.Type, p.DurationDays, p.Intensity)
	fmt.Fprintf(&b, "Client: age %d, weight %.1f kg, height %.1f cm, activity %s\n",
		p.Health.Age, p.Health.WeightKg, p.Health.HeightCm, p.Health.ActivityLevel)
	if len(p.Health.Goals) > 0 {
		fmt.Fprintf(&b, "Goals: %s\n", strings.Join(p.Health.Goals, "; "))
	}
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "Conditions: %s\n", strings.Join(p.Conditions, "; "))
	} else {
		b.WriteString("Conditions: none\n")
	}
	if len(p.Medications) > 0 {
		fmt.Fprintf(&b, "Medications: %s\n", strings.Join(p.Medications, "; "))
	}
	if len(p.Preferences) > 0 {
		keys := make([]string, 0, len(p.Preferences))
		for k := range p.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Preferences:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, p.Preferences[k])
		}
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "Trainer notes: %s\n", p.Notes)
	}
	if len(p.Outline) > 0 {
		b.WriteString("Base outline to personalise:\n")
		for _, s := range p.Outline {
			fmt.Fprintf(&b, "## %s\n", s.Title)
			for _, item := range s.Items {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
	}
	return b.String()
}

type contentJSON struct {
	Summary  string           `json:"summary"`
	Sections []domain.Section `json:"sections"`
}

// parseContent accepts the model's JSON answer, tolerating markdown fences.
// Anything that is not JSON becomes the summary.
func parseContent(text, model string) (domain.ProtocolContent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ProtocolContent{}, fmt.Errorf("empty generation output")
	}
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(text, "```json"), "```"), "```"))

	var parsed contentJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || (parsed.Summary == "" && len(parsed.Sections) == 0) {
		return domain.ProtocolContent{Source: domain.SourceAI, Model: model, Summary: text}, nil
	}
	return domain.ProtocolContent{
		Source:   domain.SourceAI,
		Model:    model,
		Summary:  parsed.Summary,
		Sections: parsed.Sections,
	}, nil
}
