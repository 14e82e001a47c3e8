package safety

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"evofit/health-protocol/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Policy is the rule table the validator evaluates.
type Policy struct {
	SeniorAge          int               `yaml:"senior_age"`
	HighIntensity      domain.Intensity  `yaml:"high_intensity"`     // Lowest intensity that counts as high
	LongDurationDays   int               `yaml:"long_duration_days"` // Durations at or above this count as high
	HighRiskConditions []string          `yaml:"high_risk_conditions"`
	Interactions       []InteractionRule `yaml:"interactions"`
}

// InteractionRule maps medication keywords to a warning for some protocol types.
type InteractionRule struct {
	Code             string                `yaml:"code"`
	Medications      []string              `yaml:"medications"`
	ProtocolTypes    []domain.ProtocolType `yaml:"protocol_types"`
	MinIntensity     domain.Intensity      `yaml:"min_intensity"`
	Severity         domain.Severity       `yaml:"severity"`
	RequiresApproval bool                  `yaml:"requires_approval"`
	Message          string                `yaml:"message"`
}

// DefaultPolicy returns the built-in policy table.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded safety policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file; an empty path yields the built-in policy.
func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read safety policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes and validates a YAML policy table.
func ParsePolicy(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("decode safety policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	p.normalize()
	return p, nil
}

func (p *Policy) validate() error {
	if p.SeniorAge <= 0 {
		return fmt.Errorf("safety policy: senior_age must be positive")
	}
	if !p.HighIntensity.Valid() {
		return fmt.Errorf("safety policy: unknown high_intensity %q", p.HighIntensity)
	}
	if p.LongDurationDays < 0 {
		return fmt.Errorf("safety policy: long_duration_days must not be negative")
	}
	for i, r := range p.Interactions {
		if r.Code == "" || len(r.Medications) == 0 {
			return fmt.Errorf("safety policy: interaction %d needs a code and at least one medication", i)
		}
		if r.MinIntensity != "" && !r.MinIntensity.Valid() {
			return fmt.Errorf("safety policy: interaction %s has unknown min_intensity %q", r.Code, r.MinIntensity)
		}
		switch r.Severity {
		case domain.SeverityInfo, domain.SeverityCaution, domain.SeverityCritical:
		case "":
			p.Interactions[i].Severity = domain.SeverityCaution
		default:
			return fmt.Errorf("safety policy: interaction %s has unknown severity %q", r.Code, r.Severity)
		}
	}
	return nil
}

// normalize lower-cases all match terms once so evaluation can stay simple.
func (p *Policy) normalize() {
	for i, c := range p.HighRiskConditions {
		p.HighRiskConditions[i] = normalizeTerm(c)
	}
	for i := range p.Interactions {
		meds := p.Interactions[i].Medications
		for j, m := range meds {
			meds[j] = normalizeTerm(m)
		}
	}
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
