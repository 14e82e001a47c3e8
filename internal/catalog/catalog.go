// Package catalog holds the built-in library of protocol templates used by the
// second wizard step.
package catalog

import (
	"evofit/health-protocol/internal/domain"
)

// Template is a named starting point for a protocol.
type Template struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Type             domain.ProtocolType `json:"type"`
	Description      string              `json:"description"`
	TargetAudience   string              `json:"targetAudience"`
	DefaultDuration  int                 `json:"defaultDurationDays"`
	DefaultIntensity domain.Intensity    `json:"defaultIntensity"`
	DefaultTags      []string            `json:"defaultTags"`
	Outline          []domain.Section    `json:"outline"` // Content used when AI generation is skipped or fails
}

// Catalog is an immutable template library. Lookups hand out deep copies so
// callers can never mutate the shared definitions.
type Catalog struct {
	templates []Template
	byID      map[string]int
}

// New builds a catalog from the given templates. Later duplicates of an id are ignored.
func New(templates []Template) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(templates))}
	for _, t := range templates {
		if _, dup := c.byID[t.ID]; dup {
			continue
		}
		c.byID[t.ID] = len(c.templates)
		c.templates = append(c.templates, cloneTemplate(t))
	}
	return c
}

// Default returns the catalog with the built-in templates.
func Default() *Catalog {
	return New(builtinTemplates)
}

// List returns every template in catalog order.
func (c *Catalog) List() []Template {
	out := make([]Template, len(c.templates))
	for i, t := range c.templates {
		out[i] = cloneTemplate(t)
	}
	return out
}

// Get returns the template with the given id or a NotFoundError.
func (c *Catalog) Get(id string) (Template, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Template{}, &domain.NotFoundError{Kind: "template", ID: id}
	}
	return cloneTemplate(c.templates[idx]), nil
}

// FallbackContent derives protocol content from the template outline alone.
func (t Template) FallbackContent() domain.ProtocolContent {
	return domain.ProtocolContent{
		Source:   domain.SourceTemplate,
		Summary:  t.Description,
		Sections: cloneSections(t.Outline),
	}
}

func cloneTemplate(t Template) Template {
	t.DefaultTags = append([]string(nil), t.DefaultTags...)
	t.Outline = cloneSections(t.Outline)
	return t
}

func cloneSections(in []domain.Section) []domain.Section {
	if in == nil {
		return nil
	}
	out := make([]domain.Section, len(in))
	for i, s := range in {
		out[i] = domain.Section{Title: s.Title, Items: append([]string(nil), s.Items...)}
	}
	return out
}
