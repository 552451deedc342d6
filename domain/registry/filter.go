package registry

import (
	"slices"
	"strings"
)

// SearchQuery holds the criteria of a search call. Zero-valued criteria
// are ignored; the rest are combined with AND.
type SearchQuery struct {
	// Capabilities matches records sharing at least one entry.
	Capabilities []string `json:"capabilities,omitempty"`

	// Domain is an exact, case-sensitive match.
	Domain string `json:"domain,omitempty"`

	// Query is a case-insensitive substring of agent id, description,
	// and specialization.
	Query string `json:"query,omitempty"`
}

// Filter selects records from an IndexStore.
type Filter struct {
	Status       Status
	Capabilities []string
	Domain       string
	Query        string
}

// StatusFilter selects records by status only.
func StatusFilter(status Status) Filter {
	return Filter{Status: status}
}

// Validate rejects criteria that are present but blank. A capability list
// of only blank entries or a whitespace query would otherwise be dropped
// and match every record.
func (q SearchQuery) Validate() error {
	if len(q.Capabilities) > 0 && len(NormalizeSet(q.Capabilities)) == 0 {
		return NewValidationError("capabilities", "capabilities cannot be blank")
	}
	if q.Query != "" && strings.TrimSpace(q.Query) == "" {
		return NewValidationError("query", "query cannot be blank")
	}
	return nil
}

// Filter converts the query into a store filter.
func (q SearchQuery) Filter() Filter {
	return Filter{
		Capabilities: NormalizeSet(q.Capabilities),
		Domain:       q.Domain,
		Query:        strings.TrimSpace(q.Query),
	}
}

// Matches reports whether rec satisfies every criterion of f.
func (f Filter) Matches(rec *AgentRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if len(f.Capabilities) > 0 && !slices.ContainsFunc(rec.Capabilities, func(c string) bool {
		return slices.Contains(f.Capabilities, c)
	}) {
		return false
	}
	if f.Domain != "" && rec.Domain != f.Domain {
		return false
	}
	if f.Query != "" {
		haystack := strings.ToLower(rec.AgentID + " " + rec.Description + " " + rec.Specialization)
		if !strings.Contains(haystack, strings.ToLower(f.Query)) {
			return false
		}
	}
	return true
}
