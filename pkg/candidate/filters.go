package candidate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks request-shaped errors the HTTP layer maps to 4xx.
var ErrValidation = errors.New("invalid search filters")

// SearchFilters is the body of POST /v1/search/. Nil and empty slices are
// equivalent; an all-zero value means "match everything".
type SearchFilters struct {
	Role          string   `json:"role,omitempty"`
	MustSkills    []string `json:"must_skills,omitempty"`
	NiceSkills    []string `json:"nice_skills,omitempty"`
	ExperienceMin *float64 `json:"experience_min,omitempty"`
	ExperienceMax *float64 `json:"experience_max,omitempty"`
	Location      string   `json:"location,omitempty"`
	WorkModes     []string `json:"work_modes,omitempty"`
	ExcludeIDs    []string `json:"exclude_ids,omitempty"`
}

// Normalize trims and lowercases skill terms, dropping empties, and trims the
// free-text fields. Mutates the receiver.
func (f *SearchFilters) Normalize() {
	f.Role = strings.TrimSpace(f.Role)
	f.Location = strings.TrimSpace(f.Location)
	f.MustSkills = normalizeTerms(f.MustSkills)
	f.NiceSkills = normalizeTerms(f.NiceSkills)
	f.WorkModes = dropEmpty(f.WorkModes)
	f.ExcludeIDs = dropEmpty(f.ExcludeIDs)
}

// Validate reports filter combinations the engine refuses to run. Errors wrap
// ErrValidation.
func (f *SearchFilters) Validate() error {
	if f.ExperienceMin != nil && *f.ExperienceMin < 0 {
		return fmt.Errorf("%w: experience_min must be non-negative", ErrValidation)
	}
	if f.ExperienceMax != nil && *f.ExperienceMax < 0 {
		return fmt.Errorf("%w: experience_max must be non-negative", ErrValidation)
	}
	if f.ExperienceMin != nil && f.ExperienceMax != nil && *f.ExperienceMin > *f.ExperienceMax {
		return fmt.Errorf("%w: experience_min (%g) exceeds experience_max (%g)",
			ErrValidation, *f.ExperienceMin, *f.ExperienceMax)
	}
	return nil
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dropEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
