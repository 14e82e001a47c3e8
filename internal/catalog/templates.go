package catalog

import "evofit/health-protocol/internal/domain"

var builtinTemplates = []Template{
	{
		ID:               "longevity-foundation",
		Name:             "Longevity Foundation",
		Type:             domain.TypeLongevity,
		Description:      "Gentle daily habits for healthy ageing: sleep, movement, whole foods and stress control.",
		TargetAudience:   "Adults starting a longevity practice",
		DefaultDuration:  30,
		DefaultIntensity: domain.IntensityModerate,
		DefaultTags:      []string{"longevity", "habits", "beginner"},
		Outline: []domain.Section{
			{Title: "Daily routine", Items: []string{"7-9 hours of sleep on a fixed schedule", "30 minutes of zone 2 movement", "10 minutes of breath work"}},
			{Title: "Nutrition", Items: []string{"Prioritise whole foods and fibre", "Finish eating 3 hours before bed"}},
			{Title: "Weekly check-in", Items: []string{"Record energy, sleep quality and resting heart rate"}},
		},
	},
	{
		ID:               "longevity-intensive",
		Name:             "Longevity Intensive",
		Type:             domain.TypeLongevity,
		Description:      "Structured fasting windows, high-intensity intervals and cold exposure for experienced clients.",
		TargetAudience:   "Experienced, healthy adults",
		DefaultDuration:  90,
		DefaultIntensity: domain.IntensityHigh,
		DefaultTags:      []string{"longevity", "fasting", "hiit"},
		Outline: []domain.Section{
			{Title: "Fasting", Items: []string{"16:8 time-restricted eating", "One 24-hour fast per week after week 4"}},
			{Title: "Training", Items: []string{"Three HIIT sessions per week", "Two strength sessions per week"}},
			{Title: "Recovery", Items: []string{"Cold exposure 3x per week", "Deload every fourth week"}},
		},
	},
	{
		ID:               "parasite-cleanse-gentle",
		Name:             "Parasite Cleanse (Gentle)",
		Type:             domain.TypeParasiteCleanse,
		Description:      "A mild, food-first cleanse with herbal support.",
		TargetAudience:   "Adults wanting a low-intensity cleanse",
		DefaultDuration:  14,
		DefaultIntensity: domain.IntensityLow,
		DefaultTags:      []string{"cleanse", "gut-health"},
		Outline: []domain.Section{
			{Title: "Diet", Items: []string{"Remove refined sugar and alcohol", "Add pumpkin seeds, garlic and papaya"}},
			{Title: "Support", Items: []string{"Hydrate with 2-3 litres of water daily", "Daily fibre supplement"}},
		},
	},
	{
		ID:               "parasite-cleanse-intensive",
		Name:             "Parasite Cleanse (Intensive)",
		Type:             domain.TypeParasiteCleanse,
		Description:      "Multi-phase herbal cleanse with wormwood, black walnut and clove.",
		TargetAudience:   "Adults cleared for an intensive cleanse",
		DefaultDuration:  30,
		DefaultIntensity: domain.IntensityIntensive,
		DefaultTags:      []string{"cleanse", "herbal", "intensive"},
		Outline: []domain.Section{
			{Title: "Phase 1 (days 1-10)", Items: []string{"Wormwood, black walnut hull and clove protocol", "Strict low-sugar diet"}},
			{Title: "Phase 2 (days 11-20)", Items: []string{"Binder support between meals", "Continue herbal protocol"}},
			{Title: "Phase 3 (days 21-30)", Items: []string{"Taper herbs", "Reintroduce probiotics"}},
		},
	},
	{
		ID:               "weight-loss",
		Name:             "Sustainable Weight Loss",
		Type:             domain.TypeCustom,
		Description:      "Moderate calorie deficit with progressive activity targets.",
		TargetAudience:   "Adults aiming for gradual fat loss",
		DefaultDuration:  60,
		DefaultIntensity: domain.IntensityModerate,
		DefaultTags:      []string{"weight-loss", "nutrition"},
		Outline: []domain.Section{
			{Title: "Nutrition", Items: []string{"300-500 kcal daily deficit", "1.6 g protein per kg bodyweight"}},
			{Title: "Activity", Items: []string{"Increase daily steps by 1,000 each week", "Two full-body strength sessions per week"}},
		},
	},
	{
		ID:               "ailments-support",
		Name:             "Ailments Support",
		Type:             domain.TypeAilments,
		Description:      "Supportive lifestyle protocol built around existing conditions.",
		TargetAudience:   "Clients managing chronic conditions alongside their physician",
		DefaultDuration:  45,
		DefaultIntensity: domain.IntensityLow,
		DefaultTags:      []string{"ailments", "supportive"},
		Outline: []domain.Section{
			{Title: "Daily routine", Items: []string{"Gentle mobility 15 minutes", "Symptom journal"}},
			{Title: "Nutrition", Items: []string{"Anti-inflammatory meal pattern"}},
		},
	},
	{
		ID:               "custom-blank",
		Name:             "Custom Protocol",
		Type:             domain.TypeCustom,
		Description:      "Start from an empty protocol and shape it in the customization step.",
		TargetAudience:   "Any",
		DefaultDuration:  30,
		DefaultIntensity: domain.IntensityModerate,
		DefaultTags:      []string{"custom"},
	},
}
