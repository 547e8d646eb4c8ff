package candidate

import (
	"errors"
	"testing"
)

func TestFiltersNormalize(t *testing.T) {
	f := SearchFilters{
		Role:       "  Backend Developer ",
		MustSkills: []string{" Go ", "POSTGRESQL", ""},
		NiceSkills: []string{"Kafka"},
		Location:   " Berlin ",
		WorkModes:  []string{"remote", " "},
		ExcludeIDs: []string{" c9 ", ""},
	}
	f.Normalize()

	if f.Role != "Backend Developer" {
		t.Errorf("unexpected role: %q", f.Role)
	}
	if f.Location != "Berlin" {
		t.Errorf("unexpected location: %q", f.Location)
	}
	if len(f.MustSkills) != 2 || f.MustSkills[0] != "go" || f.MustSkills[1] != "postgresql" {
		t.Errorf("unexpected must_skills: %v", f.MustSkills)
	}
	if len(f.NiceSkills) != 1 || f.NiceSkills[0] != "kafka" {
		t.Errorf("unexpected nice_skills: %v", f.NiceSkills)
	}
	if len(f.WorkModes) != 1 || f.WorkModes[0] != "remote" {
		t.Errorf("unexpected work_modes: %v", f.WorkModes)
	}
	if len(f.ExcludeIDs) != 1 || f.ExcludeIDs[0] != "c9" {
		t.Errorf("unexpected exclude_ids: %v", f.ExcludeIDs)
	}
}

func TestFiltersNormalize_AllEmptyBecomesNil(t *testing.T) {
	f := SearchFilters{MustSkills: []string{" ", ""}}
	f.Normalize()
	if f.MustSkills != nil {
		t.Errorf("expected nil, got %v", f.MustSkills)
	}
}

func TestFiltersValidate(t *testing.T) {
	tests := []struct {
		name    string
		filters SearchFilters
		wantErr bool
	}{
		{"zero value", SearchFilters{}, false},
		{"valid range", SearchFilters{ExperienceMin: floatPtr(1), ExperienceMax: floatPtr(5)}, false},
		{"equal bounds", SearchFilters{ExperienceMin: floatPtr(3), ExperienceMax: floatPtr(3)}, false},
		{"negative min", SearchFilters{ExperienceMin: floatPtr(-1)}, true},
		{"negative max", SearchFilters{ExperienceMax: floatPtr(-0.5)}, true},
		{"inverted range", SearchFilters{ExperienceMin: floatPtr(5), ExperienceMax: floatPtr(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filters.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
