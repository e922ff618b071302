package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// SEO checks on-page search signals. It is rule-based, runs per page and
// averages the page scores.
type SEO struct{}

// NewSEO creates the SEO analyzer.
func NewSEO() *SEO { return &SEO{} }

// Dimension implements Analyzer.
func (*SEO) Dimension() model.Dimension { return model.DimensionSEO }

// Analyze implements Analyzer.
func (s *SEO) Analyze(_ context.Context, in Input) (*model.DimensionScore, error) {
	if len(in.Captures) == 0 {
		return nil, errNoCaptures
	}

	var (
		issues []model.Issue
		scores []float64
	)
	for i := range in.Captures {
		pageIssues := seoPageIssues(&in.Captures[i])
		scores = append(scores, ScoreIssues(pageIssues))
		issues = append(issues, pageIssues...)
	}

	return &model.DimensionScore{
		Score:         mean(scores),
		Issues:        issues,
		PagesAnalyzed: len(in.Captures),
	}, nil
}

const slowSEOLoad = 4 * time.Second

func seoPageIssues(c *model.PageCapture) []model.Issue {
	const dim = model.DimensionSEO
	m := c.Meta
	var out []model.Issue
	add := func(sev model.Severity, title, desc string) {
		out = append(out, ruleIssue(dim, sev, c.URL, title, desc))
	}

	switch n := len([]rune(m.Title)); {
	case n == 0:
		add(model.SeverityCritical, "Missing page title", "The page has no <title>, so search results show no meaningful headline.")
	case n < 10:
		add(model.SeverityMinor, "Page title too short", fmt.Sprintf("The title is %d characters; 30-60 characters describe the page better.", n))
	case n > 60:
		add(model.SeverityMinor, "Page title too long", fmt.Sprintf("The title is %d characters and will be truncated in search results.", n))
	}

	switch n := len([]rune(m.Description)); {
	case n == 0:
		add(model.SeverityMajor, "Missing meta description", "Search engines will generate a snippet from page text instead of a written summary.")
	case n < 50:
		add(model.SeverityMinor, "Meta description too short", fmt.Sprintf("The description is %d characters; 120-160 characters make a better snippet.", n))
	case n > 160:
		add(model.SeverityMinor, "Meta description too long", fmt.Sprintf("The description is %d characters and will be truncated.", n))
	}

	switch len(m.H1) {
	case 0:
		add(model.SeverityMajor, "Missing H1 heading", "The page has no H1, leaving its main topic unclear to search engines.")
	case 1:
	default:
		add(model.SeverityMinor, "Multiple H1 headings", fmt.Sprintf("The page has %d H1 headings; one clear H1 is preferred.", len(m.H1)))
	}

	if m.Canonical == "" {
		add(model.SeverityMinor, "Missing canonical URL", "Without a canonical link, duplicate URLs may split ranking signals.")
	}
	if m.Viewport == "" {
		add(model.SeverityMajor, "Missing viewport meta tag", "Pages without a viewport tag are treated as not mobile-friendly.")
	}
	if strings.Contains(m.Robots, "noindex") {
		add(model.SeverityCritical, "Page blocked from indexing", "A robots meta tag tells search engines not to index this page.")
	}
	if !m.HasOpenGraph {
		add(model.SeverityMinor, "Missing Open Graph tags", "Shared links will render without a title card or image.")
	}
	if missing := m.ImageCount - m.ImagesWithAlt; missing > 0 {
		add(model.SeverityMinor, "Images missing alt text", fmt.Sprintf("%d of %d images have no alt attribute for image search.", missing, m.ImageCount))
	}
	if !c.IsHTTPS() {
		add(model.SeverityCritical, "Site not served over HTTPS", "Browsers flag plain HTTP pages as not secure and search engines rank them lower.")
	}
	if c.LoadTime > slowSEOLoad {
		add(model.SeverityMinor, "Slow page load", fmt.Sprintf("The page took %.1fs to load; speed is a ranking factor.", c.LoadTime.Seconds()))
	}
	return out
}
