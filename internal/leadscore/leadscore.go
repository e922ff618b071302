// Package leadscore ranks prospects by business fit. Scoring is a pure
// function of its input: no AI, no I/O, identical inputs give identical
// scores.
package leadscore

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Sub-score caps. They sum to 100.
const (
	MaxQualityGap  = 25.0
	MaxBudget      = 25.0
	MaxUrgency     = 20.0
	MaxIndustryFit = 15.0
	MaxCompanySize = 10.0
	MaxEngagement  = 5.0
)

// Defaults used when a signal is unknown.
const (
	DefaultQualityGap  = 12.5
	DefaultUrgency     = 4.0
	DefaultCompanySize = 3.0
)

// SiteSignals are the technical-health facts the scorer reads from a run.
type SiteSignals struct {
	Captured       bool
	HTTPS          bool
	MobileFriendly bool
	CopyrightYear  int
	Technologies   []model.Technology
}

// Input is everything Score depends on.
type Input struct {
	Industry string
	Business model.BusinessSignals
	// OverallScore is nil when the site could not be graded.
	OverallScore *float64
	Site         SiteSignals
	// Now anchors review recency and copyright staleness.
	Now time.Time
}

// SignalsFromCaptures derives SiteSignals from a run's captures.
func SignalsFromCaptures(captures []model.PageCapture) SiteSignals {
	s := SiteSignals{Technologies: []model.Technology{}}
	if len(captures) == 0 {
		return s
	}
	s.Captured = true

	root := &captures[0]
	for i := range captures {
		if captures[i].IsRoot {
			root = &captures[i]
			break
		}
	}
	s.HTTPS = root.IsHTTPS()
	s.MobileFriendly = root.Meta.Viewport != ""

	seen := map[string]bool{}
	for i := range captures {
		c := &captures[i]
		if c.Meta.CopyrightYear > s.CopyrightYear {
			s.CopyrightYear = c.Meta.CopyrightYear
		}
		for _, t := range c.Technologies {
			if !seen[t.Name] {
				seen[t.Name] = true
				s.Technologies = append(s.Technologies, t)
			}
		}
	}
	return s
}

// Scorer computes lead scores against a profile.
type Scorer struct {
	profile Profile
}

// NewScorer creates a Scorer. Empty profile fields use DefaultProfile.
func NewScorer(p Profile) *Scorer {
	return &Scorer{profile: p.withDefaults()}
}

// Score computes the lead score for in.
func (s *Scorer) Score(in Input) model.LeadScore {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	var notes []string
	note := func(format string, args ...any) { notes = append(notes, fmt.Sprintf(format, args...)) }

	ls := model.LeadScore{
		QualityGap:  s.qualityGap(in, note),
		Budget:      s.budget(in, note),
		Urgency:     s.urgency(in, note),
		IndustryFit: s.industryFit(in, note),
		CompanySize: s.companySize(in, note),
		Engagement:  engagement(in, note),
	}
	total := ls.QualityGap + ls.Budget + ls.Urgency + ls.IndustryFit + ls.CompanySize + ls.Engagement
	ls.Priority = round1(clamp(total, 0, 100))
	ls.Tier = s.tier(ls.Priority)
	ls.Reasoning = fmt.Sprintf("Priority %.1f (%s). %s.", ls.Priority, ls.Tier, strings.Join(notes, "; "))
	return ls
}

// Score computes a lead score with the default profile.
func Score(in Input) model.LeadScore {
	return NewScorer(DefaultProfile()).Score(in)
}

func (s *Scorer) tier(priority float64) model.Tier {
	switch {
	case priority >= s.profile.Tiers.Hot:
		return model.TierHot
	case priority >= s.profile.Tiers.Warm:
		return model.TierWarm
	}
	return model.TierCold
}

func (s *Scorer) qualityGap(in Input, note func(string, ...any)) float64 {
	if in.OverallScore == nil {
		note("quality gap %.1f/%.0f: site not graded", DefaultQualityGap, MaxQualityGap)
		return DefaultQualityGap
	}
	v := round1(MaxQualityGap * (100 - clamp(*in.OverallScore, 0, 100)) / 100)
	note("quality gap %.1f/%.0f: site scores %.1f", v, MaxQualityGap, *in.OverallScore)
	return v
}

func (s *Scorer) budget(in Input, note func(string, ...any)) float64 {
	var premium []string
	for _, t := range in.Site.Technologies {
		if containsFold(s.profile.PremiumTechnologies, t.Name) {
			premium = append(premium, t.Name)
		}
	}

	v := math.Min(float64(len(premium))*6, 12)
	if len(in.Site.Technologies) >= 4 {
		v += 3
	}
	if in.Business.Locations > 1 {
		v += 5
	}
	if rc := in.Business.ReviewCount; rc != nil {
		switch {
		case *rc >= 100:
			v += 5
		case *rc >= 20:
			v += 3
		}
	}
	v = clamp(v, 0, MaxBudget)
	if len(premium) > 0 {
		note("budget %.1f/%.0f: uses %s", v, MaxBudget, strings.Join(premium, ", "))
	} else {
		note("budget %.1f/%.0f: no premium tooling detected", v, MaxBudget)
	}
	return v
}

func (s *Scorer) urgency(in Input, note func(string, ...any)) float64 {
	var (
		v      float64
		reason string
	)
	if last := in.Business.LastReviewAt; last != nil {
		age := in.Now.Sub(*last)
		switch {
		case age <= 30*24*time.Hour:
			v, reason = 10, "reviewed in the last month"
		case age <= 90*24*time.Hour:
			v, reason = 7, "reviewed in the last quarter"
		case age <= 365*24*time.Hour:
			v, reason = 4, "reviewed in the last year"
		default:
			v, reason = 1, "no reviews in over a year"
		}
	} else {
		v, reason = DefaultUrgency, "no review data"
	}
	if r := in.Business.Rating; r != nil && *r < 3.5 {
		v += 2
		reason += ", low rating"
	}

	var stale []string
	if in.Site.Captured {
		if !in.Site.HTTPS {
			v += 4
			stale = append(stale, "no HTTPS")
		}
		if !in.Site.MobileFriendly {
			v += 4
			stale = append(stale, "not mobile friendly")
		}
		if y := in.Site.CopyrightYear; y > 0 && y < in.Now.Year()-1 {
			v += 2
			stale = append(stale, fmt.Sprintf("copyright %d", y))
		}
	}
	v = clamp(v, 0, MaxUrgency)
	if len(stale) > 0 {
		reason += ", " + strings.Join(stale, ", ")
	}
	note("urgency %.1f/%.0f: %s", v, MaxUrgency, reason)
	return v
}

func (s *Scorer) industryFit(in Input, note func(string, ...any)) float64 {
	switch {
	case strings.TrimSpace(in.Industry) == "":
		note("industry fit 3.0/%.0f: industry unknown", MaxIndustryFit)
		return 3
	case containsFold(s.profile.TargetIndustries, in.Industry):
		note("industry fit %.1f/%.0f: %s is a target industry", MaxIndustryFit, MaxIndustryFit, in.Industry)
		return MaxIndustryFit
	case containsFold(s.profile.AdjacentIndustries, in.Industry):
		note("industry fit 9.0/%.0f: %s is adjacent to target industries", MaxIndustryFit, in.Industry)
		return 9
	}
	note("industry fit 3.0/%.0f: %s is outside target industries", MaxIndustryFit, in.Industry)
	return 3
}

func (s *Scorer) companySize(in Input, note func(string, ...any)) float64 {
	r := s.profile.IdealEmployees
	emp := in.Business.EmployeeEstimate
	if emp == nil {
		v := DefaultCompanySize
		if in.Business.Locations > 1 {
			v += 2
		}
		note("company size %.1f/%.0f: headcount unknown", v, MaxCompanySize)
		return v
	}

	var v float64
	switch {
	case *emp >= r.Min && *emp <= r.Max:
		v = MaxCompanySize
	case *emp < r.Min:
		v = 4
	default:
		v = 6
	}
	note("company size %.1f/%.0f: about %d employees", v, MaxCompanySize, *emp)
	return v
}

func engagement(in Input, note func(string, ...any)) float64 {
	var v float64
	switch in.Business.Engagement {
	case model.EngagementMeeting:
		v = 5
	case model.EngagementReplied:
		v = 4
	case model.EngagementOpened:
		v = 2
	case model.EngagementContacted:
		v = 1
	}
	state := in.Business.Engagement
	if state == "" {
		state = model.EngagementNone
	}
	note("engagement %.1f/%.0f: %s", v, MaxEngagement, state)
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
