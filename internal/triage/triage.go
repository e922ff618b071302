// Package triage picks which discovered pages are worth capturing.
package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Operation is the ledger name for the selection call.
const Operation = "triage"

const systemPrompt = `You choose which pages of a small-business website to audit for design, SEO, content, social and accessibility quality. Prefer pages a prospective customer would visit: homepage, services, products, pricing, about, contact, locations. Avoid legal pages, archives, paginated listings and near-duplicates.

Respond with a valid JSON object only:
{"pages": [{"url": "<url copied exactly from the list>", "reason": "<short reason>"}]}`

const userPrompt = `Site: %s
Select at most %d pages, the homepage first.

Candidates (url | title | depth | inbound links | in navigation):
%s`

// Config controls the AI selection call.
type Config struct {
	Model     string
	MaxTokens int64
	// MaxCandidates bounds how many candidates are listed in the prompt.
	MaxCandidates int
}

// Selector chooses at most budget pages from the discovery candidates.
type Selector struct {
	svc inference.Service
	rec inference.Recorder
	cfg Config
}

// NewSelector creates a Selector. rec receives the cost of the AI call and
// may be nil.
func NewSelector(svc inference.Service, rec inference.Recorder, cfg Config) *Selector {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 40
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Selector{svc: svc, rec: rec, cfg: cfg}
}

type aiPage struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

type aiSelection struct {
	Pages []aiPage `json:"pages"`
}

func (s *aiSelection) Validate() error {
	if len(s.Pages) == 0 {
		return eris.New("no pages selected")
	}
	return nil
}

// Select returns the pages to capture, root first. Only reachable
// candidates are considered. When the AI call fails or yields nothing
// usable, the importance heuristic decides and a warning is returned.
func (s *Selector) Select(ctx context.Context, rootURL string, candidates []model.CandidatePage, budget int) ([]model.SelectedPage, []model.Warning) {
	if budget < 1 {
		budget = 1
	}

	reachable := make([]model.CandidatePage, 0, len(candidates))
	for _, c := range candidates {
		if c.Reachable {
			reachable = append(reachable, c)
		}
	}
	root, hasRoot := findRoot(rootURL, reachable)

	if budget == 1 && hasRoot {
		return []model.SelectedPage{{CandidatePage: root, Reason: "homepage", SelectedBy: model.SelectedByHeuristic}}, nil
	}
	if len(reachable) <= budget || s.svc == nil {
		return Heuristic(rootURL, reachable, budget), nil
	}

	log := zap.L().With(zap.String("root", rootURL))

	sel, err := inference.Call[aiSelection](ctx, s.svc, s.rec, inference.Request{
		Operation: Operation,
		Model:     s.cfg.Model,
		System:    systemPrompt,
		Prompt:    s.buildPrompt(rootURL, reachable, budget),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		log.Warn("triage: ai selection failed, using heuristic", zap.Error(err))
		return Heuristic(rootURL, reachable, budget), []model.Warning{{
			Stage:   model.StageTriage,
			Subject: rootURL,
			Reason:  fmt.Sprintf("ai selection failed (%s), used importance heuristic", inference.Kind(err)),
		}}
	}

	selected, matched := assemble(sel.Pages, reachable, root, hasRoot, budget)
	if matched == 0 {
		log.Warn("triage: ai selection matched no candidates, using heuristic")
		return Heuristic(rootURL, reachable, budget), []model.Warning{{
			Stage:   model.StageTriage,
			Subject: rootURL,
			Reason:  "ai selection matched no candidates, used importance heuristic",
		}}
	}

	log.Debug("triage: pages selected", zap.Int("selected", len(selected)), zap.Int("candidates", len(reachable)))
	return selected, nil
}

// assemble filters the AI picks to known candidates, removes duplicates,
// forces the root to the front and truncates to budget. matched counts the
// picks that named a known candidate.
func assemble(picks []aiPage, reachable []model.CandidatePage, root model.CandidatePage, hasRoot bool, budget int) (out []model.SelectedPage, matched int) {
	byURL := make(map[string]model.CandidatePage, len(reachable))
	for _, c := range reachable {
		byURL[c.URL] = c
	}

	out = make([]model.SelectedPage, 0, budget)
	seen := make(map[string]bool)
	if hasRoot {
		out = append(out, model.SelectedPage{CandidatePage: root, Reason: "homepage", SelectedBy: model.SelectedByHeuristic})
		seen[root.URL] = true
	}

	for _, p := range picks {
		u := strings.TrimSpace(p.URL)
		c, ok := byURL[u]
		if !ok {
			continue
		}
		matched++
		reason := strings.TrimSpace(p.Reason)
		if u == root.URL && hasRoot {
			out[0].SelectedBy = model.SelectedByAI
			if reason != "" {
				out[0].Reason = reason
			}
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, model.SelectedPage{CandidatePage: c, Reason: reason, SelectedBy: model.SelectedByAI})
	}

	if len(out) > budget {
		out = out[:budget]
	}
	return out, matched
}

// Heuristic selects the root plus the highest-importance candidates,
// breaking ties by URL.
func Heuristic(rootURL string, reachable []model.CandidatePage, budget int) []model.SelectedPage {
	if budget < 1 {
		budget = 1
	}
	root, hasRoot := findRoot(rootURL, reachable)

	rest := make([]model.CandidatePage, 0, len(reachable))
	for _, c := range reachable {
		if hasRoot && c.URL == root.URL {
			continue
		}
		rest = append(rest, c)
	}
	sortByImportance(rest)

	out := make([]model.SelectedPage, 0, min(budget, len(reachable)))
	if hasRoot {
		out = append(out, model.SelectedPage{CandidatePage: root, Reason: "homepage", SelectedBy: model.SelectedByHeuristic})
	}
	for _, c := range rest {
		if len(out) >= budget {
			break
		}
		out = append(out, model.SelectedPage{
			CandidatePage: c,
			Reason:        fmt.Sprintf("importance %.1f", c.Importance),
			SelectedBy:    model.SelectedByHeuristic,
		})
	}
	return out
}

func sortByImportance(pages []model.CandidatePage) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Importance != pages[j].Importance {
			return pages[i].Importance > pages[j].Importance
		}
		return pages[i].URL < pages[j].URL
	})
}

// findRoot matches rootURL exactly, then falls back to the depth-0 candidate.
func findRoot(rootURL string, reachable []model.CandidatePage) (model.CandidatePage, bool) {
	for _, c := range reachable {
		if c.URL == rootURL {
			return c, true
		}
	}
	for _, c := range reachable {
		if c.Depth == 0 {
			return c, true
		}
	}
	return model.CandidatePage{}, false
}

func (s *Selector) buildPrompt(rootURL string, reachable []model.CandidatePage, budget int) string {
	listed := make([]model.CandidatePage, len(reachable))
	copy(listed, reachable)
	sortByImportance(listed)
	if len(listed) > s.cfg.MaxCandidates {
		listed = listed[:s.cfg.MaxCandidates]
	}

	var b strings.Builder
	for _, c := range listed {
		title := c.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(&b, "- %s | %s | %d | %d | %t\n", c.URL, title, c.Depth, c.InboundLinks, c.InNavigation)
	}
	return fmt.Sprintf(userPrompt, rootURL, budget, b.String())
}
