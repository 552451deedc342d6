package registry

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AgentUpdate carries the fields of a partial update. A nil field leaves
// the stored value unchanged. AgentID is not part of it: ids are immutable.
type AgentUpdate struct {
	AgentURL       *string  `json:"agent_url,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
	Domain         *string  `json:"domain,omitempty"`
	Specialization *string  `json:"specialization,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Modalities     []string `json:"modalities,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Streaming      *bool    `json:"streaming,omitempty"`
	Batch          *bool    `json:"batch,omitempty"`
	Status         *Status  `json:"status,omitempty"`
}

// Validate rejects values that would break record invariants. A non-nil
// set field must keep at least one entry after normalization.
func (u AgentUpdate) Validate() error {
	if u.AgentURL != nil && strings.TrimSpace(*u.AgentURL) == "" {
		return NewValidationError("agent_url", "agent_url cannot be empty")
	}
	if u.Capabilities != nil && len(NormalizeSet(u.Capabilities)) == 0 {
		return NewValidationError("capabilities", "capabilities cannot be empty")
	}
	if u.Modalities != nil && len(NormalizeSet(u.Modalities)) == 0 {
		return NewValidationError("modalities", "modalities cannot be empty")
	}
	if u.Languages != nil && len(NormalizeSet(u.Languages)) == 0 {
		return NewValidationError("languages", "languages cannot be empty")
	}
	if u.Status != nil && !u.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", *u.Status))
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u AgentUpdate) IsEmpty() bool {
	return u.AgentURL == nil && u.Capabilities == nil && u.Domain == nil &&
		u.Specialization == nil && u.Description == nil && u.Modalities == nil &&
		u.Languages == nil && u.Streaming == nil && u.Batch == nil && u.Status == nil
}

// Patch is the unit of change storage adapters apply to a record. It adds
// the service-owned fields to a caller update.
type Patch struct {
	AgentUpdate

	// AgentFactsURL replaces the facts pointer when non-nil.
	AgentFactsURL *string

	// UpdatedAt is always written.
	UpdatedAt time.Time
}

// Apply mutates rec in place and reports whether any field changed.
// UpdatedAt is written only when something changed.
func (p Patch) Apply(rec *AgentRecord) bool {
	changed := false

	setString := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setSet := func(dst *[]string, src []string) {
		if src == nil {
			return
		}
		v := NormalizeSet(src)
		if !slices.Equal(*dst, v) {
			*dst = v
			changed = true
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}

	setString(&rec.AgentURL, p.AgentURL)
	setSet(&rec.Capabilities, p.Capabilities)
	setString(&rec.Domain, p.Domain)
	setString(&rec.Specialization, p.Specialization)
	setString(&rec.Description, p.Description)
	setSet(&rec.Modalities, p.Modalities)
	setSet(&rec.Languages, p.Languages)
	setBool(&rec.Streaming, p.Streaming)
	setBool(&rec.Batch, p.Batch)
	if p.Status != nil && rec.Status != *p.Status {
		rec.Status = *p.Status
		changed = true
	}
	if p.AgentFactsURL != nil && rec.AgentFactsURL != *p.AgentFactsURL {
		rec.AgentFactsURL = *p.AgentFactsURL
		changed = true
	}

	if changed && !p.UpdatedAt.IsZero() {
		rec.UpdatedAt = p.UpdatedAt.UTC()
	}
	return changed
}

// Fields returns the patch as a flat field map keyed by the record's
// document field names, for backends that apply partial updates natively.
func (p Patch) Fields() map[string]any {
	fields := make(map[string]any)
	if p.AgentURL != nil {
		fields["agent_url"] = strings.TrimSpace(*p.AgentURL)
	}
	if p.Capabilities != nil {
		fields["capabilities"] = NormalizeSet(p.Capabilities)
	}
	if p.Domain != nil {
		fields["domain"] = strings.TrimSpace(*p.Domain)
	}
	if p.Specialization != nil {
		fields["specialization"] = strings.TrimSpace(*p.Specialization)
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Modalities != nil {
		fields["modalities"] = NormalizeSet(p.Modalities)
	}
	if p.Languages != nil {
		fields["languages"] = NormalizeSet(p.Languages)
	}
	if p.Streaming != nil {
		fields["streaming"] = *p.Streaming
	}
	if p.Batch != nil {
		fields["batch"] = *p.Batch
	}
	if p.Status != nil {
		fields["status"] = string(*p.Status)
	}
	if p.AgentFactsURL != nil {
		fields["agent_facts_url"] = *p.AgentFactsURL
	}
	return fields
}
