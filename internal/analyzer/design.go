package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

const slowDesignLoad = 5 * time.Second

// Design reviews the homepage visually from its desktop and mobile
// screenshots. Without screenshots or a working vision model the dimension
// cannot be scored and Analyze returns an error.
type Design struct {
	svc inference.Service
	rec inference.Recorder
	cfg Config
}

// NewDesign creates the design analyzer.
func NewDesign(svc inference.Service, rec inference.Recorder, cfg Config) *Design {
	return &Design{svc: svc, rec: rec, cfg: cfg.withDefaults()}
}

// Dimension implements Analyzer.
func (*Design) Dimension() model.Dimension { return model.DimensionDesign }

// Analyze implements Analyzer.
func (d *Design) Analyze(ctx context.Context, in Input) (*model.DimensionScore, error) {
	root := in.Root()
	if root == nil {
		return nil, errNoCaptures
	}

	var (
		images    []inference.Image
		viewports []string
	)
	if len(root.DesktopScreenshot) > 0 {
		images = append(images, inference.Image{MediaType: "image/png", Data: root.DesktopScreenshot})
		viewports = append(viewports, "desktop")
	}
	if len(root.MobileScreenshot) > 0 {
		images = append(images, inference.Image{MediaType: "image/png", Data: root.MobileScreenshot})
		viewports = append(viewports, "mobile")
	}
	if len(images) == 0 {
		return nil, eris.Errorf("design: no screenshots of %s", root.URL)
	}
	if d.svc == nil {
		return nil, eris.New("design: no vision model configured")
	}

	issues := designRuleIssues(root)
	ruleScore := ScoreIssues(issues)

	review, err := inference.Call[aiReview](ctx, d.svc, d.rec, inference.Request{
		Operation: "analyze.design",
		Model:     d.cfg.VisionModel,
		System:    "You are a senior web designer reviewing a small business homepage.",
		Prompt:    d.prompt(in.Site, root, viewports),
		Images:    images,
		MaxTokens: d.cfg.MaxTokens,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "design: vision review (%s)", inference.Kind(err))
	}

	issues = append(issues, review.toIssues(model.DimensionDesign, map[string]bool{root.URL: true}, root.URL, visualTopic)...)
	return &model.DimensionScore{
		Score:         Blend(*review.Score, ruleScore),
		Issues:        issues,
		PagesAnalyzed: 1,
	}, nil
}

func designRuleIssues(root *model.PageCapture) []model.Issue {
	const dim = model.DimensionDesign
	var out []model.Issue
	if root.Meta.Viewport == "" {
		out = append(out, ruleIssue(dim, model.SeverityMajor, root.URL, "Layout not set up for mobile",
			"The homepage has no viewport meta tag, so phones render a zoomed-out desktop layout."))
	}
	if root.LoadTime > slowDesignLoad {
		out = append(out, ruleIssue(dim, model.SeverityMajor, root.URL, "Homepage loads slowly",
			fmt.Sprintf("The homepage took %.1fs to finish loading; visitors leave before seeing the design.", root.LoadTime.Seconds())))
	}
	return out
}

func visualTopic(is aiIssue) string {
	switch strings.ToLower(strings.TrimSpace(is.Viewport)) {
	case "desktop":
		return "visual_desktop"
	case "mobile":
		return "visual_mobile"
	}
	return "visual"
}

func (d *Design) prompt(site model.Site, root *model.PageCapture, viewports []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attached are screenshots of %s in this order: %s.", root.URL, strings.Join(viewports, ", "))
	if site.Industry != "" {
		fmt.Fprintf(&b, " The business is in %s.", site.Industry)
	}
	b.WriteString("\nJudge visual hierarchy, typography, imagery, whitespace, branding consistency and mobile layout.\n")
	b.WriteString(`Add "viewport": "desktop" or "mobile" to each issue when it only affects one layout.` + "\n\n")
	b.WriteString(reviewSchema)
	return b.String()
}
