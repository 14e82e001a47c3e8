package domain

// Deep copies for values that are handed across layer boundaries. Stores and
// the wizard must never share slices or maps with their callers.

func (h HealthInfo) Clone() HealthInfo {
	h.Goals = cloneStrings(h.Goals)
	return h
}

func (c ProtocolContent) Clone() ProtocolContent {
	if c.Sections != nil {
		sections := make([]Section, len(c.Sections))
		for i, s := range c.Sections {
			sections[i] = Section{Title: s.Title, Items: cloneStrings(s.Items)}
		}
		c.Sections = sections
	}
	return c
}

func (a SafetyAssessment) Clone() SafetyAssessment {
	if a.Warnings != nil {
		a.Warnings = append([]Warning{}, a.Warnings...)
	}
	return a
}

func (c ProtocolConfig) Clone() ProtocolConfig {
	c.Tags = cloneStrings(c.Tags)
	c.Conditions = cloneStrings(c.Conditions)
	c.Medications = cloneStrings(c.Medications)
	c.Preferences = cloneStringMap(c.Preferences)
	c.Content = c.Content.Clone()
	if c.ClientID != nil {
		id := *c.ClientID
		c.ClientID = &id
	}
	if c.Health != nil {
		h := c.Health.Clone()
		c.Health = &h
	}
	if c.Safety != nil {
		s := c.Safety.Clone()
		c.Safety = &s
	}
	return c
}

func (p Protocol) Clone() Protocol {
	p.Config = p.Config.Clone()
	return p
}

func (v ProtocolVersion) Clone() ProtocolVersion {
	v.Config = v.Config.Clone()
	if v.RestoredFrom != nil {
		n := *v.RestoredFrom
		v.RestoredFrom = &n
	}
	return v
}

func (a ProtocolAssignment) Clone() ProtocolAssignment {
	if a.EndDate != nil {
		t := *a.EndDate
		a.EndDate = &t
	}
	if a.Progress != nil {
		progress := make(map[string]any, len(a.Progress))
		for k, v := range a.Progress {
			progress[k] = v
		}
		a.Progress = progress
	}
	return a
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
