package synthesis

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/belivan/MaxantAgency-sub002/internal/cost"
	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/inference/mocks"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

func issue(cat model.Dimension, sev model.Severity, page, title string) model.Issue {
	return model.Issue{
		Category:    cat,
		Severity:    sev,
		Title:       title,
		Description: title + " on " + page,
		PageURL:     page,
		Analyzer:    string(cat),
		Source:      model.SourceRule,
	}
}

func sampleRaw() []model.Issue {
	return []model.Issue{
		issue(model.DimensionSEO, model.SeverityMinor, "https://acme.test/", "Meta description too short"),
		issue(model.DimensionSEO, model.SeverityMajor, "https://acme.test/about", "Missing meta description"),
		issue(model.DimensionSEO, model.SeverityMajor, "https://acme.test/contact", "Meta description missing"),
		issue(model.DimensionAccessibility, model.SeverityMajor, "https://acme.test/", "Missing page language"),
		issue(model.DimensionSEO, model.SeverityCritical, "https://acme.test/", "Site not served over HTTPS"),
		issue(model.DimensionDesign, model.SeverityMinor, "https://acme.test/", "Meta description missing"),
	}
}

func TestConsolidate_GroupsByCategoryAndTitle(t *testing.T) {
	got := Consolidate(sampleRaw(), DefaultMaxIssues)
	require.Len(t, got, 4)

	assert.Equal(t, "Site not served over HTTPS", got[0].Title)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)

	// The three SEO description findings merge; the first major wins.
	desc := got[1]
	assert.Equal(t, "Missing meta description", desc.Title)
	assert.Equal(t, model.SeverityMajor, desc.Severity)
	assert.Equal(t, 3, desc.Occurrences)
	assert.Equal(t, []int{0, 1, 2}, desc.SourceIDs)
	assert.Equal(t, []string{"https://acme.test/", "https://acme.test/about", "https://acme.test/contact"}, desc.Pages)
	assert.Equal(t, []string{"seo"}, desc.Analyzers)

	assert.Equal(t, model.DimensionAccessibility, got[2].Category)
	// A same-titled finding in another category stays separate.
	assert.Equal(t, model.DimensionDesign, got[3].Category)
}

func TestConsolidate_Deterministic(t *testing.T) {
	assert.Equal(t, Consolidate(sampleRaw(), 10), Consolidate(sampleRaw(), 10))
	assert.Equal(t, Summarize(sampleRaw(), Consolidate(sampleRaw(), 10)), Summarize(sampleRaw(), Consolidate(sampleRaw(), 10)))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, []string{"description", "meta"}, normalizeTitle("Missing META Description!"))
	assert.Equal(t, normalizeTitle("STRASSE straße"), []string{"strasse"})
	assert.Empty(t, normalizeTitle("The missing page"))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.Equal(t, 0.0, jaccard([]string{"a"}, nil))
	assert.Equal(t, 0.5, jaccard([]string{"alt", "images", "text"}, []string{"alternatives", "images", "text"}))
}

func TestSynthesize_Empty(t *testing.T) {
	svc := mocks.NewMockService(t)
	got, warnings := NewSynthesizer(svc, nil, Config{}).Synthesize(context.Background(), nil)
	assert.Empty(t, warnings)
	assert.NotNil(t, got.Issues)
	assert.Empty(t, got.Issues)
	assert.Equal(t, 0.0, got.ReductionPct)
	assert.NotEmpty(t, got.ExecutiveSummary)
	svc.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestSynthesize_AIResult(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.MatchedBy(func(req inference.Request) bool {
		return req.Operation == Operation && req.Model == "sonnet"
	})).Return(&inference.Response{
		Text: `{"executive_summary": "Fix <b>HTTPS</b> first.<script>alert(1)</script>", "issues": [
			{"title": "Meta descriptions", "description": "Write one per page.", "category": "seo", "severity": "major", "source_ids": [2, 1, 0, 1]},
			{"title": "Enable HTTPS", "description": "<a href='x'>Buy</a> a certificate.", "category": "SEO", "severity": "critical", "source_ids": [4]}
		]}`,
		CostUSD: 0.02,
	}, nil).Once()

	ledger := cost.NewLedger(0)
	raw := sampleRaw()
	got, warnings := NewSynthesizer(svc, ledger, Config{Model: "sonnet"}).Synthesize(context.Background(), raw)

	assert.Empty(t, warnings)
	assert.Equal(t, model.SynthesisAI, got.Source)
	require.Len(t, got.Issues, 2)
	assert.Equal(t, "Enable HTTPS", got.Issues[0].Title)
	assert.Equal(t, "Buy a certificate.", got.Issues[0].Description)
	assert.Equal(t, []int{0, 1, 2}, got.Issues[1].SourceIDs)
	assert.Equal(t, 3, got.Issues[1].Occurrences)
	assert.Equal(t, "Fix HTTPS first.", got.ExecutiveSummary)
	assert.InDelta(t, 1-2.0/6.0, got.ReductionPct, 1e-9)
	assert.Len(t, ledger.Entries(), 1)
}

func TestSynthesize_InvalidAIFallsBack(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown category", `{"executive_summary": "x", "issues": [{"title": "t", "category": "social", "severity": "major", "source_ids": [0]}]}`},
		{"unknown severity", `{"executive_summary": "x", "issues": [{"title": "t", "category": "seo", "severity": "blocker", "source_ids": [0]}]}`},
		{"source out of range", `{"executive_summary": "x", "issues": [{"title": "t", "category": "seo", "severity": "major", "source_ids": [6]}]}`},
		{"no sources", `{"executive_summary": "x", "issues": [{"title": "t", "category": "seo", "severity": "major", "source_ids": []}]}`},
		{"shared source", `{"executive_summary": "x", "issues": [{"title": "a", "category": "seo", "severity": "major", "source_ids": [0, 1]}, {"title": "b", "category": "seo", "severity": "major", "source_ids": [1]}]}`},
		{"empty list", `{"executive_summary": "x", "issues": []}`},
		{"no summary", `{"issues": [{"title": "t", "category": "seo", "severity": "major", "source_ids": [0]}]}`},
		{"not json", `I could not do that.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := mocks.NewMockService(t)
			svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{Text: tt.text}, nil).Once()

			got, warnings := NewSynthesizer(svc, nil, Config{}).Synthesize(context.Background(), sampleRaw())
			assert.Equal(t, model.SynthesisFallback, got.Source)
			assert.Len(t, got.Issues, 4)
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0].Reason, "malformed-response")
		})
	}
}

func TestSynthesize_TooManyIssuesFallsBack(t *testing.T) {
	svc := mocks.NewMockService(t)
	text := `{"executive_summary": "x", "issues": [`
	for i := 0; i < 3; i++ {
		if i > 0 {
			text += ","
		}
		text += `{"title": "t", "category": "seo", "severity": "major", "source_ids": [0]}`
	}
	text += "]}"
	svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{Text: text}, nil).Once()

	got, _ := NewSynthesizer(svc, nil, Config{MaxIssues: 2}).Synthesize(context.Background(), sampleRaw())
	assert.Equal(t, model.SynthesisFallback, got.Source)
	assert.Len(t, got.Issues, 2)
}

func TestSynthesize_MoreIssuesThanRawFallsBack(t *testing.T) {
	raw := []model.Issue{
		issue(model.DimensionSEO, model.SeverityMajor, "https://acme.test/", "Missing title"),
		issue(model.DimensionSEO, model.SeverityMajor, "https://acme.test/about", "Missing meta description"),
	}
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{Text: `{"executive_summary": "x", "issues": [
		{"title": "a", "category": "seo", "severity": "major", "source_ids": [0]},
		{"title": "b", "category": "seo", "severity": "major", "source_ids": [0]},
		{"title": "c", "category": "seo", "severity": "major", "source_ids": [1]},
		{"title": "d", "category": "seo", "severity": "major", "source_ids": [1]}
	]}`}, nil).Once()

	got, warnings := NewSynthesizer(svc, nil, Config{}).Synthesize(context.Background(), raw)
	assert.Equal(t, model.SynthesisFallback, got.Source)
	assert.LessOrEqual(t, len(got.Issues), len(raw))
	assert.GreaterOrEqual(t, got.ReductionPct, 0.0)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "malformed-response")
}

// 40 raw issues and a timed-out AI call still yield at most ten
// consolidated issues with the reduction measured against all 40.
func TestSynthesize_TimeoutWithFortyIssues(t *testing.T) {
	var raw []model.Issue
	dims := model.AllDimensions()
	sevs := []model.Severity{model.SeverityCritical, model.SeverityMajor, model.SeverityMinor}
	for i := 0; i < 40; i++ {
		raw = append(raw, issue(dims[i%len(dims)], sevs[i%len(sevs)], fmt.Sprintf("https://acme.test/p%d", i%4), fmt.Sprintf("Defect %d", i%12)))
	}

	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(nil, eris.Wrap(inference.ErrTimeout, "deadline")).Once()

	got, warnings := NewSynthesizer(svc, nil, Config{}).Synthesize(context.Background(), raw)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "timeout")
	assert.Equal(t, model.SynthesisFallback, got.Source)
	assert.NotEmpty(t, got.Issues)
	assert.LessOrEqual(t, len(got.Issues), 10)
	assert.InDelta(t, 1-float64(len(got.Issues))/40, got.ReductionPct, 1e-9)

	for i := 1; i < len(got.Issues); i++ {
		assert.GreaterOrEqual(t, got.Issues[i-1].Severity.Rank(), got.Issues[i].Severity.Rank())
	}
	assert.Contains(t, got.ExecutiveSummary, "40 findings")
}

func TestSynthesize_ReductionLaw(t *testing.T) {
	for n := 1; n <= 30; n++ {
		raw := make([]model.Issue, n)
		for i := range raw {
			raw[i] = issue(model.DimensionContent, model.SeverityMinor, "https://acme.test/", fmt.Sprintf("Finding %d", i))
		}
		got, _ := NewSynthesizer(nil, nil, Config{}).Synthesize(context.Background(), raw)
		assert.NotEmpty(t, got.Issues)
		assert.LessOrEqual(t, len(got.Issues), n)
		assert.GreaterOrEqual(t, got.ReductionPct, 0.0)
	}
}
