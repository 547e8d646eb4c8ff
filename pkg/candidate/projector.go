package candidate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingID rejects candidates that cannot be keyed in either store.
var ErrMissingID = errors.New("candidate data missing 'id'")

// ToLexical projects a raw candidate into the document stored in the lexical
// index. Unknown upstream fields are dropped by construction; skills are
// lowercased and trimmed.
func ToLexical(c Candidate) (LexicalDoc, error) {
	if c.ID == "" {
		return LexicalDoc{}, ErrMissingID
	}

	skills := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		if v := strings.ToLower(strings.TrimSpace(s.Skill)); v != "" {
			skills = append(skills, v)
		}
	}

	workModes := c.WorkModes
	if workModes == nil {
		workModes = []string{}
	}

	return LexicalDoc{
		ID:              c.ID,
		TelegramID:      c.TelegramID,
		HeadlineRole:    c.HeadlineRole,
		ExperienceYears: c.ExperienceYears,
		Location:        c.Location,
		WorkModes:       workModes,
		Skills:          skills,
	}, nil
}

// ToSemanticText renders the embedding-model input: field-prefixed segments
// joined by ". " with a trailing period. The exact byte layout is part of the
// model-input contract; changing it invalidates every stored vector and
// requires a full reindex.
func ToSemanticText(c Candidate) string {
	var parts []string

	if c.HeadlineRole != "" {
		parts = append(parts, "Должность: "+c.HeadlineRole)
	}

	if len(c.Skills) > 0 {
		names := make([]string, 0, len(c.Skills))
		for _, s := range c.Skills {
			if s.Skill != "" {
				names = append(names, s.Skill)
			}
		}
		if len(names) > 0 {
			parts = append(parts, "Навыки: "+strings.Join(names, ", "))
		}
	}

	if len(c.Projects) > 0 {
		segs := make([]string, 0, len(c.Projects))
		for _, p := range c.Projects {
			segs = append(segs, fmt.Sprintf("%s: %s", p.Title, p.Description))
		}
		parts = append(parts, "Проекты: "+strings.Join(segs, ". "))
	}

	if len(c.Experiences) > 0 {
		segs := make([]string, 0, len(c.Experiences))
		for _, e := range c.Experiences {
			segs = append(segs, fmt.Sprintf("%s в %s: %s", e.Position, e.Company, e.Responsibilities))
		}
		parts = append(parts, "Опыт: "+strings.Join(segs, ". "))
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, ". ") + "."
}
