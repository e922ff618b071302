// Package synthesis consolidates a run's raw issues into a short, ranked
// list with an executive summary. The AI path is validated against the
// input; anything it gets wrong falls back to deterministic consolidation.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Operation is the ledger name of the synthesis call.
const Operation = "synthesis"

// DefaultMaxIssues caps the consolidated list.
const DefaultMaxIssues = 10

// Config configures a Synthesizer.
type Config struct {
	Model     string
	MaxTokens int64
	MaxIssues int
	// MaxPromptIssues bounds how many raw issues are sent to the model;
	// longer inputs go straight to the fallback.
	MaxPromptIssues int
}

// Synthesizer produces a SynthesisResult from raw issues.
type Synthesizer struct {
	svc    inference.Service
	rec    inference.Recorder
	cfg    Config
	policy *bluemonday.Policy
}

// NewSynthesizer creates a Synthesizer. svc may be nil, in which case
// only the fallback runs.
func NewSynthesizer(svc inference.Service, rec inference.Recorder, cfg Config) *Synthesizer {
	if cfg.MaxIssues <= 0 {
		cfg.MaxIssues = DefaultMaxIssues
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxPromptIssues <= 0 {
		cfg.MaxPromptIssues = 400
	}
	return &Synthesizer{svc: svc, rec: rec, cfg: cfg, policy: bluemonday.StrictPolicy()}
}

// Synthesize consolidates raw. The result is never empty when raw is not.
func (s *Synthesizer) Synthesize(ctx context.Context, raw []model.Issue) (model.SynthesisResult, []model.Warning) {
	if len(raw) == 0 {
		return s.fallback(raw), nil
	}
	if s.svc == nil {
		return s.fallback(raw), nil
	}
	if len(raw) > s.cfg.MaxPromptIssues {
		return s.fallback(raw), []model.Warning{{
			Stage:  model.StageSynthesis,
			Reason: fmt.Sprintf("%d raw issues exceed the prompt limit, used rule-based consolidation", len(raw)),
		}}
	}

	resp, err := inference.Call[aiSynthesis](ctx, s.svc, s.rec, inference.Request{
		Operation: Operation,
		Model:     s.cfg.Model,
		System:    "You consolidate website audit findings into a prioritized action list for a small business owner.",
		Prompt:    s.prompt(raw),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err == nil {
		err = resp.check(raw, s.cfg.MaxIssues)
		if err != nil {
			err = eris.Wrap(inference.ErrMalformedResponse, err.Error())
		}
	}
	if err != nil {
		zap.L().Warn("synthesis: ai consolidation rejected, using fallback",
			zap.Int("raw_issues", len(raw)),
			zap.Error(err),
		)
		return s.fallback(raw), []model.Warning{{
			Stage:  model.StageSynthesis,
			Reason: fmt.Sprintf("ai synthesis failed (%s), used rule-based consolidation", inference.Kind(err)),
		}}
	}

	issues := s.fromAI(raw, resp)
	return model.SynthesisResult{
		Issues:           issues,
		ExecutiveSummary: s.clean(resp.ExecutiveSummary),
		ReductionPct:     model.ReductionPct(len(raw), len(issues)),
		Source:           model.SynthesisAI,
	}, nil
}

func (s *Synthesizer) fallback(raw []model.Issue) model.SynthesisResult {
	issues := Consolidate(raw, s.cfg.MaxIssues)
	return model.SynthesisResult{
		Issues:           issues,
		ExecutiveSummary: Summarize(raw, issues),
		ReductionPct:     model.ReductionPct(len(raw), len(issues)),
		Source:           model.SynthesisFallback,
	}
}

type aiIssue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	SourceIDs   []int  `json:"source_ids"`
}

type aiSynthesis struct {
	ExecutiveSummary string    `json:"executive_summary"`
	Issues           []aiIssue `json:"issues"`
}

// check validates the response against the raw input it was derived from.
func (a *aiSynthesis) check(raw []model.Issue, limit int) error {
	if strings.TrimSpace(a.ExecutiveSummary) == "" {
		return eris.New("empty executive summary")
	}
	if len(a.Issues) == 0 {
		return eris.New("no consolidated issues")
	}
	limit = min(limit, len(raw))
	if len(a.Issues) > limit {
		return eris.Errorf("%d issues exceed the limit of %d", len(a.Issues), limit)
	}

	cats := map[model.Dimension]bool{}
	sevs := map[model.Severity]bool{}
	for _, is := range raw {
		cats[is.Category] = true
		sevs[is.Severity] = true
	}
	// Each raw issue may back at most one consolidated issue.
	cited := make(map[int]int, len(raw))
	for i, is := range a.Issues {
		if strings.TrimSpace(is.Title) == "" {
			return eris.Errorf("issue %d has no title", i)
		}
		if !cats[model.Dimension(strings.ToLower(is.Category))] {
			return eris.Errorf("issue %d has category %q not present in input", i, is.Category)
		}
		if !sevs[model.Severity(strings.ToLower(is.Severity))] {
			return eris.Errorf("issue %d has severity %q not present in input", i, is.Severity)
		}
		if len(is.SourceIDs) == 0 {
			return eris.Errorf("issue %d cites no source issues", i)
		}
		for _, id := range is.SourceIDs {
			if id < 0 || id >= len(raw) {
				return eris.Errorf("issue %d cites unknown source %d", i, id)
			}
			if prev, ok := cited[id]; ok && prev != i {
				return eris.Errorf("issues %d and %d both cite source %d", prev, i, id)
			}
			cited[id] = i
		}
	}
	return nil
}

func (s *Synthesizer) fromAI(raw []model.Issue, resp aiSynthesis) []model.ConsolidatedIssue {
	out := make([]model.ConsolidatedIssue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		ids := uniqueSorted(is.SourceIDs)
		ci := model.ConsolidatedIssue{
			Title:       s.clean(is.Title),
			Description: s.clean(is.Description),
			Category:    model.Dimension(strings.ToLower(is.Category)),
			Severity:    model.Severity(strings.ToLower(is.Severity)),
			Pages:       []string{},
			Analyzers:   []string{},
			Occurrences: len(ids),
			SourceIDs:   ids,
		}
		if ci.Title == "" {
			ci.Title = raw[ids[0]].Title
		}
		for _, id := range ids {
			ci.Pages = appendUnique(ci.Pages, raw[id].PageURL)
			ci.Analyzers = appendUnique(ci.Analyzers, raw[id].Analyzer)
		}
		out = append(out, ci)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity.Rank() > out[j].Severity.Rank() })
	return out
}

func (s *Synthesizer) clean(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

func (s *Synthesizer) prompt(raw []model.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below are %d raw findings from five website analyzers, one per line as [id] category | severity | page | title: description.\n", len(raw))
	fmt.Fprintf(&b, "Merge findings that describe the same underlying defect, even when different analyzers reported them, and return at most %d consolidated issues ranked by business impact.\n", s.cfg.MaxIssues)
	b.WriteString("Use only categories and severities that appear in the input. Cite every merged finding id in source_ids.\n\n")
	for i, is := range raw {
		fmt.Fprintf(&b, "[%d] %s | %s | %s | %s: %s\n", i, is.Category, is.Severity, is.PageURL, is.Title, is.Description)
	}
	b.WriteString("\nRespond with a valid JSON object only:\n")
	b.WriteString(`{"executive_summary": "<2-3 sentences>", "issues": [{"title": "...", "description": "...", "category": "design|seo|content|social|accessibility", "severity": "critical|major|minor", "source_ids": [0, 3]}]}`)
	return b.String()
}

func uniqueSorted(ids []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
