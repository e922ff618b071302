package model

// Dimension is a quality axis scored by one analyzer. Issue categories use
// the same values.
type Dimension string

const (
	DimensionDesign        Dimension = "design"
	DimensionSEO           Dimension = "seo"
	DimensionContent       Dimension = "content"
	DimensionSocial        Dimension = "social"
	DimensionAccessibility Dimension = "accessibility"
)

// AllDimensions returns the dimensions in canonical order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimensionDesign,
		DimensionSEO,
		DimensionContent,
		DimensionSocial,
		DimensionAccessibility,
	}
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionDesign, DimensionSEO, DimensionContent, DimensionSocial, DimensionAccessibility:
		return true
	}
	return false
}

// Severity ranks an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Rank orders severities; higher is worse. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// IssueSource distinguishes rule-based findings from AI findings.
type IssueSource string

const (
	SourceRule IssueSource = "rule"
	SourceAI   IssueSource = "ai"
)

// Issue is a single finding. Issues are value objects.
type Issue struct {
	Category    Dimension   `json:"category"`
	Severity    Severity    `json:"severity"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	PageURL     string      `json:"page_url,omitempty"`
	Analyzer    string      `json:"analyzer"`
	Source      IssueSource `json:"source"`
	Topic       string      `json:"topic,omitempty"`
}

// ConsolidatedIssue is a deduplicated issue produced by synthesis.
type ConsolidatedIssue struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Dimension `json:"category"`
	Severity    Severity  `json:"severity"`
	Pages       []string  `json:"pages"`
	Analyzers   []string  `json:"analyzers"`
	Occurrences int       `json:"occurrences"`
	SourceIDs   []int     `json:"source_ids"`
}

// SynthesisSource identifies which path produced a synthesis result.
type SynthesisSource string

const (
	SynthesisAI       SynthesisSource = "ai"
	SynthesisFallback SynthesisSource = "fallback"
)

// SynthesisResult is the consolidated issue list for a run.
type SynthesisResult struct {
	Issues           []ConsolidatedIssue `json:"issues"`
	ExecutiveSummary string              `json:"executive_summary"`
	ReductionPct     float64             `json:"reduction_pct"`
	Source           SynthesisSource     `json:"source"`
}

// ReductionPct returns 1 - consolidated/raw, or 0 when raw is zero.
func ReductionPct(raw, consolidated int) float64 {
	if raw <= 0 {
		return 0
	}
	return 1 - float64(consolidated)/float64(raw)
}
