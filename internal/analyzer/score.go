package analyzer

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Severity penalties subtracted from a perfect 100.
const (
	PenaltyCritical = 20.0
	PenaltyMajor    = 10.0
	PenaltyMinor    = 4.0
)

// AIWeight is the share of a blended score taken from the AI review.
const AIWeight = 0.6

// Penalty returns the score deduction for one issue of severity s.
func Penalty(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return PenaltyCritical
	case model.SeverityMajor:
		return PenaltyMajor
	case model.SeverityMinor:
		return PenaltyMinor
	}
	return 0
}

// ScoreIssues returns 100 minus the penalties of issues, clamped to [0,100].
func ScoreIssues(issues []model.Issue) float64 {
	score := 100.0
	for _, is := range issues {
		score -= Penalty(is.Severity)
	}
	return clamp(score)
}

// Blend mixes an AI score with a rule score.
func Blend(ai, rules float64) float64 {
	return clamp(round1(AIWeight*ai + (1-AIWeight)*rules))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return round1(sum / float64(len(vs)))
}

func ruleIssue(dim model.Dimension, sev model.Severity, page, title, desc string) model.Issue {
	return model.Issue{
		Category:    dim,
		Severity:    sev,
		Title:       title,
		Description: desc,
		PageURL:     page,
		Analyzer:    string(dim),
		Source:      model.SourceRule,
	}
}

// aiIssue is one finding in an AI review response.
type aiIssue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	PageURL     string `json:"page_url,omitempty"`
	Viewport    string `json:"viewport,omitempty"`
}

// aiReview is the response schema shared by the AI-assisted analyzers.
type aiReview struct {
	Score   *float64  `json:"score"`
	Summary string    `json:"summary"`
	Issues  []aiIssue `json:"issues"`
}

func (r *aiReview) Validate() error {
	if r.Score == nil {
		return eris.New("missing score")
	}
	if *r.Score < 0 || *r.Score > 100 {
		return eris.Errorf("score %.1f out of range", *r.Score)
	}
	for i, is := range r.Issues {
		if strings.TrimSpace(is.Title) == "" {
			return eris.Errorf("issue %d has no title", i)
		}
		if !model.Severity(strings.ToLower(is.Severity)).Valid() {
			return eris.Errorf("issue %d has unknown severity %q", i, is.Severity)
		}
	}
	return nil
}

// toIssues converts AI findings to issues. Page URLs the AI invents are
// replaced by fallbackPage.
func (r *aiReview) toIssues(dim model.Dimension, known map[string]bool, fallbackPage string, topic func(aiIssue) string) []model.Issue {
	out := make([]model.Issue, 0, len(r.Issues))
	for _, is := range r.Issues {
		page := strings.TrimSpace(is.PageURL)
		if !known[page] {
			page = fallbackPage
		}
		out = append(out, model.Issue{
			Category:    dim,
			Severity:    model.Severity(strings.ToLower(is.Severity)),
			Title:       strings.TrimSpace(is.Title),
			Description: strings.TrimSpace(is.Description),
			PageURL:     page,
			Analyzer:    string(dim),
			Source:      model.SourceAI,
			Topic:       topic(is),
		})
	}
	return out
}

const reviewSchema = `Respond with a valid JSON object only:
{"score": <0-100>, "summary": "<one sentence>", "issues": [{"title": "<short>", "description": "<what is wrong and why it matters>", "severity": "critical|major|minor", "page_url": "<url from the input or empty>"}]}
Only report problems you can see in the material provided. If there is nothing to report, return an empty issues list.`
