package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

type group struct {
	tokens []string
	best   int
	first  int
	issue  model.ConsolidatedIssue
}

// Consolidate merges raw issues without AI: issues in the same category
// whose normalized titles are similar form one group represented by its
// most severe member (earliest on ties). Groups are ordered by severity,
// then occurrences, then first appearance, and capped at limit.
func Consolidate(raw []model.Issue, limit int) []model.ConsolidatedIssue {
	var groups []*group
	for i, is := range raw {
		tokens := normalizeTitle(is.Title)
		var g *group
		for _, cand := range groups {
			if cand.issue.Category == is.Category && jaccard(cand.tokens, tokens) >= SimilarityThreshold {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{
				tokens: tokens,
				best:   i,
				first:  i,
				issue: model.ConsolidatedIssue{
					Title:       is.Title,
					Description: is.Description,
					Category:    is.Category,
					Severity:    is.Severity,
					Pages:       []string{},
					Analyzers:   []string{},
					SourceIDs:   []int{},
				},
			}
			groups = append(groups, g)
		} else if is.Severity.Rank() > raw[g.best].Severity.Rank() {
			g.best = i
			g.issue.Title = is.Title
			g.issue.Description = is.Description
			g.issue.Severity = is.Severity
		}
		g.issue.Occurrences++
		g.issue.SourceIDs = append(g.issue.SourceIDs, i)
		g.issue.Pages = appendUnique(g.issue.Pages, is.PageURL)
		g.issue.Analyzers = appendUnique(g.issue.Analyzers, is.Analyzer)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if ra, rb := a.issue.Severity.Rank(), b.issue.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.issue.Occurrences != b.issue.Occurrences {
			return a.issue.Occurrences > b.issue.Occurrences
		}
		return a.first < b.first
	})
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	out := make([]model.ConsolidatedIssue, len(groups))
	for i, g := range groups {
		out[i] = g.issue
	}
	return out
}

// Summarize writes a deterministic executive summary.
func Summarize(raw []model.Issue, issues []model.ConsolidatedIssue) string {
	if len(raw) == 0 {
		return "No issues were found on the analyzed pages."
	}

	dims := map[model.Dimension]bool{}
	for _, is := range raw {
		dims[is.Category] = true
	}
	counts := map[model.Severity]int{}
	for _, is := range issues {
		counts[is.Severity]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d findings across %d %s consolidated into %d priority issues (%d critical, %d major, %d minor).",
		len(raw), len(dims), plural(len(dims), "dimension", "dimensions"), len(issues),
		counts[model.SeverityCritical], counts[model.SeverityMajor], counts[model.SeverityMinor])
	if len(issues) > 0 {
		top := issues[0]
		fmt.Fprintf(&b, " Top priority: %s (%s, %s", top.Title, top.Category, top.Severity)
		if top.Occurrences > 1 {
			fmt.Fprintf(&b, ", seen %d times", top.Occurrences)
		}
		b.WriteString(").")
	}
	return b.String()
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
