package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

const thinContentWords = 250

// Content reviews copy quality: rule checks over every page plus one AI
// review of the homepage and top pages.
type Content struct {
	svc inference.Service
	rec inference.Recorder
	cfg Config
}

// NewContent creates the content analyzer. svc may be nil, in which case
// only rule checks run.
func NewContent(svc inference.Service, rec inference.Recorder, cfg Config) *Content {
	return &Content{svc: svc, rec: rec, cfg: cfg.withDefaults()}
}

// Dimension implements Analyzer.
func (*Content) Dimension() model.Dimension { return model.DimensionContent }

// Analyze implements Analyzer.
func (c *Content) Analyze(ctx context.Context, in Input) (*model.DimensionScore, error) {
	if len(in.Captures) == 0 {
		return nil, errNoCaptures
	}

	issues := c.ruleIssues(in)
	ruleScore := ScoreIssues(issues)
	out := &model.DimensionScore{
		Score:         ruleScore,
		PagesAnalyzed: len(in.Captures),
	}

	pages := c.textPages(in)
	if len(pages) == 0 {
		out.Issues = issues
		return out, nil
	}
	if c.svc == nil {
		out.Issues = issues
		out.DegradedReason = "ai review unavailable"
		return out, nil
	}

	review, err := inference.Call[aiReview](ctx, c.svc, c.rec, inference.Request{
		Operation: "analyze.content",
		Model:     c.cfg.Model,
		System:    "You are a conversion copywriter auditing a small business website.",
		Prompt:    c.prompt(in.Site, pages),
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		out.Issues = issues
		out.DegradedReason = fmt.Sprintf("ai content review failed (%s)", inference.Kind(err))
		return out, nil
	}

	known := make(map[string]bool, len(pages))
	for _, p := range pages {
		known[p.URL] = true
	}
	root := pages[0].URL
	issues = append(issues, review.toIssues(model.DimensionContent, known, root, func(aiIssue) string { return "copy" })...)
	out.Issues = issues
	out.Score = Blend(*review.Score, ruleScore)
	return out, nil
}

func (c *Content) ruleIssues(in Input) []model.Issue {
	const dim = model.DimensionContent
	var (
		out                []model.Issue
		hasContact, hasCTA bool
		latestYear         int
	)
	for i := range in.Captures {
		p := &in.Captures[i]
		if p.WordCount < thinContentWords {
			out = append(out, ruleIssue(dim, model.SeverityMinor, p.URL, "Thin content",
				fmt.Sprintf("The page has %d words; visitors and search engines need more substance to act on.", p.WordCount)))
		}
		if p.Meta.HasPhone || p.Meta.HasEmail {
			hasContact = true
		}
		if len(p.Meta.CallsToAction) > 0 {
			hasCTA = true
		}
		if p.Meta.CopyrightYear > latestYear {
			latestYear = p.Meta.CopyrightYear
		}
	}

	root := in.Root().URL
	if !hasContact {
		out = append(out, ruleIssue(dim, model.SeverityMajor, root, "No contact information",
			"No phone number or email address appears on any analyzed page."))
	}
	if !hasCTA {
		out = append(out, ruleIssue(dim, model.SeverityMajor, root, "No clear call to action",
			"None of the analyzed pages ask the visitor to call, book, or request a quote."))
	}
	if latestYear > 0 && latestYear < c.cfg.Now().Year()-1 {
		out = append(out, ruleIssue(dim, model.SeverityMinor, root, "Outdated copyright year",
			fmt.Sprintf("The footer still says %d, which suggests the site is not maintained.", latestYear)))
	}
	return out
}

// textPages returns the root and the wordiest other pages that have text,
// bounded by MaxTextPages.
func (c *Content) textPages(in Input) []*model.PageCapture {
	var root *model.PageCapture
	var rest []*model.PageCapture
	for i := range in.Captures {
		p := &in.Captures[i]
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if p.IsRoot && root == nil {
			root = p
			continue
		}
		rest = append(rest, p)
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].WordCount > rest[j].WordCount })

	var out []*model.PageCapture
	if root != nil {
		out = append(out, root)
	}
	out = append(out, rest...)
	if len(out) > c.cfg.MaxTextPages {
		out = out[:c.cfg.MaxTextPages]
	}
	return out
}

func (c *Content) prompt(site model.Site, pages []*model.PageCapture) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the written content of %s", site.RootURL)
	if site.Industry != "" {
		fmt.Fprintf(&b, " (industry: %s)", site.Industry)
	}
	b.WriteString(". Judge clarity, value proposition, trust signals and calls to action.\n\n")
	for _, p := range pages {
		fmt.Fprintf(&b, "## Page: %s\nTitle: %s\n", p.URL, p.Meta.Title)
		if len(p.Meta.CallsToAction) > 0 {
			fmt.Fprintf(&b, "Calls to action: %s\n", strings.Join(p.Meta.CallsToAction, "; "))
		}
		b.WriteString(truncateRunes(p.Text, c.cfg.MaxTextChars))
		b.WriteString("\n\n")
	}
	b.WriteString(reviewSchema)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
