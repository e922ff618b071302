package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Issue topics for the social dimension.
const (
	TopicProfilePresence = "profile_presence"
	TopicProfileContent  = "profile_content"
)

// noProfilesScore is the social score of a site that links to no profiles.
const noProfilesScore = 20.0

// Social checks social-media presence. Profile content is only reviewed
// when the site links to at least one profile; a site without profiles
// gets a single presence issue and nothing else.
type Social struct {
	svc inference.Service
	rec inference.Recorder
	cfg Config
}

// NewSocial creates the social analyzer.
func NewSocial(svc inference.Service, rec inference.Recorder, cfg Config) *Social {
	return &Social{svc: svc, rec: rec, cfg: cfg.withDefaults()}
}

// Dimension implements Analyzer.
func (*Social) Dimension() model.Dimension { return model.DimensionSocial }

// Analyze implements Analyzer.
func (s *Social) Analyze(ctx context.Context, in Input) (*model.DimensionScore, error) {
	if len(in.Captures) == 0 {
		return nil, errNoCaptures
	}
	root := in.Root()
	profiles := collectProfiles(in.Captures)

	if len(profiles) == 0 {
		is := ruleIssue(model.DimensionSocial, model.SeverityCritical, root.URL, "No social media profiles linked",
			"The site does not link to any social profile, so visitors cannot check recent activity or reviews.")
		is.Topic = TopicProfilePresence
		return &model.DimensionScore{
			Score:         noProfilesScore,
			Issues:        []model.Issue{is},
			PagesAnalyzed: len(in.Captures),
		}, nil
	}

	issues := presenceIssues(root, profiles)
	ruleScore := ScoreIssues(issues)
	out := &model.DimensionScore{
		Score:         ruleScore,
		PagesAnalyzed: len(in.Captures),
	}
	if s.svc == nil {
		out.Issues = issues
		out.DegradedReason = "ai review unavailable"
		return out, nil
	}

	review, err := inference.Call[aiReview](ctx, s.svc, s.rec, inference.Request{
		Operation: "analyze.social",
		Model:     s.cfg.Model,
		System:    "You are a social media strategist auditing how a small business presents itself online.",
		Prompt:    s.prompt(in.Site, root, profiles),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		out.Issues = issues
		out.DegradedReason = fmt.Sprintf("ai social review failed (%s)", inference.Kind(err))
		return out, nil
	}

	known := map[string]bool{root.URL: true}
	for _, p := range profiles {
		known[p.URL] = true
	}
	issues = append(issues, review.toIssues(model.DimensionSocial, known, root.URL, func(aiIssue) string { return TopicProfileContent })...)
	out.Issues = issues
	out.Score = Blend(*review.Score, ruleScore)
	return out, nil
}

// collectProfiles returns the distinct profile links across captures,
// sorted by platform then URL.
func collectProfiles(captures []model.PageCapture) []model.SocialProfile {
	seen := map[string]bool{}
	var out []model.SocialProfile
	for i := range captures {
		for _, p := range captures[i].SocialProfiles {
			key := strings.TrimSuffix(strings.ToLower(p.URL), "/")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func presenceIssues(root *model.PageCapture, profiles []model.SocialProfile) []model.Issue {
	const dim = model.DimensionSocial
	var out []model.Issue

	platforms := map[string]bool{}
	for _, p := range profiles {
		platforms[p.Platform] = true
	}
	if len(platforms) == 1 {
		is := ruleIssue(dim, model.SeverityMinor, root.URL, "Only one social platform",
			fmt.Sprintf("The site only links to %s; customers on other networks will not find the business.", profiles[0].Platform))
		is.Topic = TopicProfilePresence
		out = append(out, is)
	}
	if len(root.SocialProfiles) == 0 {
		is := ruleIssue(dim, model.SeverityMinor, root.URL, "Social links missing from homepage",
			"Profile links only appear on inner pages, where most visitors will not see them.")
		is.Topic = TopicProfilePresence
		out = append(out, is)
	}
	return out
}

func (s *Social) prompt(site model.Site, root *model.PageCapture, profiles []model.SocialProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The website %s", site.RootURL)
	if site.Industry != "" {
		fmt.Fprintf(&b, " (industry: %s)", site.Industry)
	}
	b.WriteString(" links to these social profiles:\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "- %s: %s\n", p.Platform, p.URL)
	}
	fmt.Fprintf(&b, "\nHomepage title: %s\n", root.Meta.Title)
	b.WriteString("Assess how well the profile set and handles support the business: platform fit for the industry, naming consistency, and how prominently the site promotes them.\n")
	b.WriteString("Set page_url to the profile URL an issue concerns.\n\n")
	b.WriteString(reviewSchema)
	return b.String()
}
