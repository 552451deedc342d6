// Package registry provides the domain model for the agent directory:
// index records, facts documents, search filters, and the ports the
// registry service depends on.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// Status is the operator-declared availability of an agent.
// The registry never changes it on its own.
type Status string

const (
	// StatusActive marks an agent as available for discovery.
	StatusActive Status = "active"

	// StatusInactive marks an agent as registered but not in service.
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Defaults applied to registrations that omit optional fields.
const (
	DefaultDomain         = "general"
	DefaultSpecialization = "general"
	DefaultCapability     = "chat"
	DefaultModality       = "text"
	DefaultLanguage       = "en"
	DefaultStreaming      = false
	DefaultBatch          = true
)

// AgentRegistration is the caller-supplied input of a register call.
// AgentID and AgentURL are required; everything else is optional.
type AgentRegistration struct {
	AgentID        string   `json:"agent_id"`
	AgentURL       string   `json:"agent_url"`
	Capabilities   []string `json:"capabilities,omitempty"`
	Domain         string   `json:"domain,omitempty"`
	Specialization string   `json:"specialization,omitempty"`
	Description    string   `json:"description,omitempty"`
	Modalities     []string `json:"modalities,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Streaming      *bool    `json:"streaming,omitempty"`
	Batch          *bool    `json:"batch,omitempty"`
	Status         Status   `json:"status,omitempty"`
}

// Validate checks the required fields and the optional status.
func (r AgentRegistration) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return NewValidationError("agent_id", "agent_id is required")
	}
	if strings.TrimSpace(r.AgentURL) == "" {
		return NewValidationError("agent_url", "agent_url is required")
	}
	if r.Status != "" && !r.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", r.Status))
	}
	return nil
}

// AgentRecord is an entry of the agent index: identity and routing data.
type AgentRecord struct {
	// ID is the identifier assigned by the storage backend.
	ID string `json:"id,omitempty"`

	AgentID        string   `json:"agent_id"`
	AgentURL       string   `json:"agent_url"`
	Capabilities   []string `json:"capabilities"`
	Domain         string   `json:"domain,omitempty"`
	Specialization string   `json:"specialization,omitempty"`
	Description    string   `json:"description,omitempty"`
	Modalities     []string `json:"modalities"`
	Languages      []string `json:"languages"`
	Streaming      bool     `json:"streaming"`
	Batch          bool     `json:"batch"`
	Status         Status   `json:"status"`

	// AgentFactsURL points at the published facts document. Empty when
	// publishing failed or is disabled.
	AgentFactsURL string `json:"agent_facts_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord builds the canonical record for a registration, applying the
// documented defaults. The registration is expected to be valid.
func NewRecord(reg AgentRegistration, now time.Time) *AgentRecord {
	domain := strings.TrimSpace(reg.Domain)
	if domain == "" {
		domain = DefaultDomain
	}
	specialization := strings.TrimSpace(reg.Specialization)
	if specialization == "" {
		specialization = DefaultSpecialization
	}
	description := strings.TrimSpace(reg.Description)
	if description == "" {
		description = fmt.Sprintf("Expert %s agent in %s domain", specialization, domain)
	}

	capabilities := NormalizeSet(reg.Capabilities)
	if len(capabilities) == 0 {
		capabilities = []string{DefaultCapability}
	}
	modalities := NormalizeSet(reg.Modalities)
	if len(modalities) == 0 {
		modalities = []string{DefaultModality}
	}
	languages := NormalizeSet(reg.Languages)
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}

	streaming := DefaultStreaming
	if reg.Streaming != nil {
		streaming = *reg.Streaming
	}
	batch := DefaultBatch
	if reg.Batch != nil {
		batch = *reg.Batch
	}
	status := reg.Status
	if status == "" {
		status = StatusActive
	}

	now = now.UTC()
	return &AgentRecord{
		AgentID:        reg.AgentID,
		AgentURL:       strings.TrimSpace(reg.AgentURL),
		Capabilities:   capabilities,
		Domain:         domain,
		Specialization: specialization,
		Description:    description,
		Modalities:     modalities,
		Languages:      languages,
		Streaming:      streaming,
		Batch:          batch,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Summary returns the listing projection of the record.
func (r *AgentRecord) Summary() AgentSummary {
	return AgentSummary{
		AgentID:        r.AgentID,
		AgentURL:       r.AgentURL,
		Capabilities:   append([]string(nil), r.Capabilities...),
		Domain:         r.Domain,
		Specialization: r.Specialization,
		Description:    r.Description,
		Status:         r.Status,
		AgentFactsURL:  r.AgentFactsURL,
	}
}

// Clone returns a deep copy of the record.
func (r *AgentRecord) Clone() *AgentRecord {
	c := *r
	c.Capabilities = append([]string(nil), r.Capabilities...)
	c.Modalities = append([]string(nil), r.Modalities...)
	c.Languages = append([]string(nil), r.Languages...)
	return &c
}

// AgentSummary is what list and search return for each matching agent.
type AgentSummary struct {
	AgentID        string   `json:"agent_id"`
	AgentURL       string   `json:"agent_url"`
	Capabilities   []string `json:"capabilities"`
	Domain         string   `json:"domain,omitempty"`
	Specialization string   `json:"specialization,omitempty"`
	Description    string   `json:"description,omitempty"`
	Status         Status   `json:"status"`
	AgentFactsURL  string   `json:"agent_facts_url"`
}

// NormalizeSet trims entries, drops blanks, and collapses duplicates while
// keeping the first occurrence order.
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// RegistrationResult is returned by a successful register call.
type RegistrationResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AgentID       string `json:"agent_id"`
	ID            string `json:"id"`
	AgentFactsURL string `json:"agent_facts_url"`
}

// UpdateResult is returned by a successful update call.
type UpdateResult struct {
	Success bool   `json:"success"`
	AgentID string `json:"agent_id"`
	// Modified is false when the supplied values equal the stored ones.
	Modified bool `json:"modified"`
}

// DeleteResult is returned by a successful delete call.
type DeleteResult struct {
	Success bool   `json:"success"`
	AgentID string `json:"agent_id"`
}
