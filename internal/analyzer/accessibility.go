package analyzer

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

var errNoCaptures = eris.New("analyzer: no captures")

// Accessibility checks WCAG-style structural signals per page.
type Accessibility struct{}

// NewAccessibility creates the accessibility analyzer.
func NewAccessibility() *Accessibility { return &Accessibility{} }

// Dimension implements Analyzer.
func (*Accessibility) Dimension() model.Dimension { return model.DimensionAccessibility }

// Analyze implements Analyzer.
func (a *Accessibility) Analyze(_ context.Context, in Input) (*model.DimensionScore, error) {
	if len(in.Captures) == 0 {
		return nil, errNoCaptures
	}

	var (
		issues []model.Issue
		scores []float64
	)
	for i := range in.Captures {
		pageIssues := accessibilityPageIssues(&in.Captures[i])
		scores = append(scores, ScoreIssues(pageIssues))
		issues = append(issues, pageIssues...)
	}

	return &model.DimensionScore{
		Score:         mean(scores),
		Issues:        issues,
		PagesAnalyzed: len(in.Captures),
	}, nil
}

func accessibilityPageIssues(c *model.PageCapture) []model.Issue {
	const dim = model.DimensionAccessibility
	m := c.Meta
	var out []model.Issue
	add := func(sev model.Severity, title, desc string) {
		out = append(out, ruleIssue(dim, sev, c.URL, title, desc))
	}

	if missing := m.ImageCount - m.ImagesWithAlt; missing > 0 {
		sev := model.SeverityMinor
		if missing*2 > m.ImageCount {
			sev = model.SeverityMajor
		}
		add(sev, "Images without text alternatives", fmt.Sprintf("%d of %d images have no alt attribute, so screen readers cannot describe them.", missing, m.ImageCount))
	}
	if m.Lang == "" {
		add(model.SeverityMajor, "Missing page language", "The <html> element has no lang attribute, so assistive technology may mispronounce content.")
	}
	if m.UnlabeledInputs > 0 {
		add(model.SeverityMajor, "Form fields without labels", fmt.Sprintf("%d of %d form fields have no associated label.", m.UnlabeledInputs, m.FormInputs))
	}
	if !m.HasLandmark("main") {
		add(model.SeverityMinor, "Missing main landmark", "No <main> element or role=\"main\" lets keyboard users skip to the content.")
	}
	if from, to, ok := headingSkip(m.Headings); ok {
		add(model.SeverityMinor, "Heading levels skipped", fmt.Sprintf("The outline jumps from h%d to h%d.", from, to))
	}
	if m.EmptyLinks > 0 {
		sev := model.SeverityMinor
		if m.EmptyLinks > 2 {
			sev = model.SeverityMajor
		}
		add(sev, "Links without accessible names", fmt.Sprintf("%d links have no text, label or described image.", m.EmptyLinks))
	}
	return out
}

// headingSkip reports the first place the outline descends more than one level.
func headingSkip(hs []model.Heading) (from, to int, ok bool) {
	prev := 0
	for _, h := range hs {
		if prev > 0 && h.Level > prev+1 {
			return prev, h.Level, true
		}
		prev = h.Level
	}
	return 0, 0, false
}
