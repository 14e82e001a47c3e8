// Package safety evaluates a client's age, conditions and medications against
// the selected protocol and decides whether healthcare approval is required.
package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"evofit/health-protocol/internal/domain"
)

// Input is everything the validator looks at. The same input always yields
// the same assessment.
type Input struct {
	Age          int
	Conditions   []string
	Medications  []string
	ProtocolType domain.ProtocolType
	Intensity    domain.Intensity
	DurationDays int
}

// Validator applies a Policy.
type Validator struct {
	policy Policy
}

func NewValidator(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Policy returns the table the validator was built with.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Evaluate produces the safety assessment for the given input.
func (v *Validator) Evaluate(in Input) domain.SafetyAssessment {
	var (
		warnings []domain.Warning
		approval bool
	)
	demanding := v.isDemanding(in)

	for _, rule := range v.policy.Interactions {
		if !v.ruleApplies(rule, in) {
			continue
		}
		for _, med := range in.Medications {
			if !matchesAny(med, rule.Medications) {
				continue
			}
			warnings = append(warnings, domain.Warning{
				Code:     "interaction:" + rule.Code,
				Severity: rule.Severity,
				Subject:  strings.TrimSpace(med),
				Message:  rule.Message,
			})
			if rule.RequiresApproval {
				approval = true
			}
		}
	}

	for _, cond := range in.Conditions {
		term, ok := v.highRiskTerm(cond)
		if !ok {
			continue
		}
		if demanding {
			warnings = append(warnings, domain.Warning{
				Code:     "high-risk-condition",
				Severity: domain.SeverityCritical,
				Subject:  term,
				Message:  "High-risk condition combined with a high-intensity or long protocol requires healthcare provider approval.",
			})
			approval = true
			continue
		}
		warnings = append(warnings, domain.Warning{
			Code:     "condition-monitoring",
			Severity: domain.SeverityCaution,
			Subject:  term,
			Message:  "Monitor this condition throughout the protocol.",
		})
	}

	if in.Age >= v.policy.SeniorAge {
		if demanding {
			warnings = append(warnings, domain.Warning{
				Code:     "senior-high-intensity",
				Severity: domain.SeverityCritical,
				Subject:  "age " + strconv.Itoa(in.Age),
				Message:  "Clients aged " + strconv.Itoa(v.policy.SeniorAge) + "+ need healthcare provider approval for high-intensity or long protocols.",
			})
			approval = true
		} else {
			warnings = append(warnings, domain.Warning{
				Code:     "senior-client",
				Severity: domain.SeverityInfo,
				Subject:  "age " + strconv.Itoa(in.Age),
				Message:  "Consider a check-in with the client's physician.",
			})
		}
	}

	warnings = dedupeAndSort(warnings)
	return domain.SafetyAssessment{
		Warnings:                   warnings,
		RequiresHealthcareApproval: approval,
		Fingerprint:                fingerprint(warnings, approval),
	}
}

// isDemanding reports a high-intensity or high-duration protocol selection.
func (v *Validator) isDemanding(in Input) bool {
	if in.Intensity.Rank() >= v.policy.HighIntensity.Rank() {
		return true
	}
	return v.policy.LongDurationDays > 0 && in.DurationDays >= v.policy.LongDurationDays
}

func (v *Validator) ruleApplies(rule InteractionRule, in Input) bool {
	if len(rule.ProtocolTypes) > 0 {
		found := false
		for _, t := range rule.ProtocolTypes {
			if t == in.ProtocolType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if rule.MinIntensity != "" && in.Intensity.Rank() < rule.MinIntensity.Rank() {
		return false
	}
	return true
}

func (v *Validator) highRiskTerm(condition string) (string, bool) {
	c := normalizeTerm(condition)
	if c == "" {
		return "", false
	}
	for _, term := range v.policy.HighRiskConditions {
		if strings.Contains(c, term) {
			return term, true
		}
	}
	return "", false
}

// matchesAny is a case-insensitive substring match of free text against keywords.
func matchesAny(text string, keywords []string) bool {
	t := normalizeTerm(text)
	if t == "" {
		return false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func dedupeAndSort(in []domain.Warning) []domain.Warning {
	out := make([]domain.Warning, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, w := range in {
		key := w.Code + "\x00" + strings.ToLower(w.Subject)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

func fingerprint(warnings []domain.Warning, approval bool) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatBool(approval)))
	for _, w := range warnings {
		h.Write([]byte{0})
		h.Write([]byte(w.Code))
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(w.Subject)))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
