package model

import "time"

// Engagement is the prior outreach state for a prospect.
type Engagement string

const (
	EngagementNone      Engagement = "none"
	EngagementContacted Engagement = "contacted"
	EngagementOpened    Engagement = "opened"
	EngagementReplied   Engagement = "replied"
	EngagementMeeting   Engagement = "meeting"
)

// ParseEngagement maps free-form input onto a known engagement state.
// Unknown values map to EngagementNone.
func ParseEngagement(s string) Engagement {
	switch Engagement(s) {
	case EngagementContacted, EngagementOpened, EngagementReplied, EngagementMeeting:
		return Engagement(s)
	}
	return EngagementNone
}

// BusinessSignals are prospect attributes gathered outside the site
// analysis (reviews, size, outreach history). Pointer fields are nil when
// the signal is unknown.
type BusinessSignals struct {
	ReviewCount      *int       `json:"review_count,omitempty" yaml:"review_count"`
	Rating           *float64   `json:"rating,omitempty" yaml:"rating"`
	LastReviewAt     *time.Time `json:"last_review_at,omitempty" yaml:"last_review_at"`
	EmployeeEstimate *int       `json:"employee_estimate,omitempty" yaml:"employee_estimate"`
	Locations        int        `json:"locations,omitempty" yaml:"locations"`
	Engagement       Engagement `json:"engagement,omitempty" yaml:"engagement"`
}

// Site is the target of one analysis run. It is never mutated once a run starts.
type Site struct {
	ID         string          `json:"id"`
	RootURL    string          `json:"root_url"`
	Name       string          `json:"name,omitempty"`
	Industry   string          `json:"industry,omitempty"`
	PageBudget int             `json:"page_budget"`
	Business   BusinessSignals `json:"business"`
}
