// Package candidate defines the candidate domain model: the raw profile shape
// served by the upstream candidate API, the lexical projection stored in
// Elasticsearch, and the search filter contract of the public API.
package candidate

// Skill is one entry of a candidate's skill list. The upstream API attaches
// more attributes per skill; only the name matters here.
type Skill struct {
	Skill string `json:"skill"`
}

type Project struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Experience struct {
	Position         string `json:"position"`
	Company          string `json:"company"`
	Responsibilities string `json:"responsibilities"`
}

// Candidate is the upstream source-of-truth profile. All fields except ID and
// TelegramID are optional; absent JSON fields decode to zero values.
type Candidate struct {
	ID              string       `json:"id"`
	TelegramID      int64        `json:"telegram_id"`
	HeadlineRole    string       `json:"headline_role,omitempty"`
	ExperienceYears *float64     `json:"experience_years,omitempty"`
	Location        string       `json:"location,omitempty"`
	WorkModes       []string     `json:"work_modes,omitempty"`
	Skills          []Skill      `json:"skills,omitempty"`
	Projects        []Project    `json:"projects,omitempty"`
	Experiences     []Experience `json:"experiences,omitempty"`
	DisplayName     string       `json:"display_name,omitempty"`
}

// LexicalDoc is the closed projection indexed into the lexical store. Skills
// are lowercased and trimmed; the document id doubles as the store _id.
type LexicalDoc struct {
	ID              string   `json:"id"`
	TelegramID      int64    `json:"telegram_id"`
	HeadlineRole    string   `json:"headline_role,omitempty"`
	ExperienceYears *float64 `json:"experience_years,omitempty"`
	Location        string   `json:"location,omitempty"`
	WorkModes       []string `json:"work_modes"`
	Skills          []string `json:"skills"`
}
