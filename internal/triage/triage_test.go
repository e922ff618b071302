package triage

import (
	"context"
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

const root = "https://acme.test/"

func candidates() []model.CandidatePage {
	return []model.CandidatePage{
		{URL: root, Depth: 0, Reachable: true, Importance: 104},
		{URL: "https://acme.test/services", Depth: 1, Reachable: true, Importance: 8},
		{URL: "https://acme.test/contact", Depth: 1, Reachable: true, Importance: 8},
		{URL: "https://acme.test/about", Depth: 1, Reachable: true, Importance: 12},
		{URL: "https://acme.test/gone", Depth: 1, Reachable: false, Importance: 50},
		{URL: "https://acme.test/team", Depth: 2, Reachable: true, Importance: -4},
	}
}

func urls(pages []model.SelectedPage) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestSelect_AIChoiceFilteredAndRootForced(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.MatchedBy(func(req inference.Request) bool {
		return req.Operation == Operation && req.Model == "haiku"
	})).Return(&inference.Response{
		Text:    `{"pages":[{"url":"https://acme.test/contact","reason":"conversion"},{"url":"https://acme.test/made-up","reason":"?"},{"url":"https://acme.test/contact","reason":"dup"},{"url":"https://acme.test/gone","reason":"unreachable"},{"url":"https://acme.test/team","reason":"people"}]}`,
		Model:   "haiku",
		CostUSD: 0.001,
	}, nil).Once()

	ledger := cost.NewLedger(0)
	s := NewSelector(svc, ledger, Config{Model: "haiku"})

	got, warnings := s.Select(context.Background(), root, candidates(), 3)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{root, "https://acme.test/contact", "https://acme.test/team"}, urls(got))
	assert.Equal(t, model.SelectedByHeuristic, got[0].SelectedBy)
	assert.Equal(t, model.SelectedByAI, got[1].SelectedBy)
	assert.Equal(t, "conversion", got[1].Reason)
	assert.Len(t, ledger.Entries(), 1)
}

func TestSelect_TruncatesToBudget(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{
		Text: `{"pages":[{"url":"https://acme.test/","reason":"home"},{"url":"https://acme.test/about","reason":"a"},{"url":"https://acme.test/services","reason":"b"},{"url":"https://acme.test/contact","reason":"c"}]}`,
	}, nil).Once()

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 2)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{root, "https://acme.test/about"}, urls(got))
	assert.Equal(t, model.SelectedByAI, got[0].SelectedBy)
	assert.Equal(t, "home", got[0].Reason)
}

func TestSelect_FallsBackOnAIFailure(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(nil, eris.Wrap(inference.ErrTimeout, "slow")).Once()

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 3)

	require.Len(t, warnings, 1)
	assert.Equal(t, model.StageTriage, warnings[0].Stage)
	assert.Contains(t, warnings[0].Reason, "timeout")
	// about (12) beats contact and services (8); the tie is broken by URL.
	assert.Equal(t, []string{root, "https://acme.test/about", "https://acme.test/contact"}, urls(got))
	for _, p := range got {
		assert.Equal(t, model.SelectedByHeuristic, p.SelectedBy)
	}
}

func TestSelect_FallsBackWhenNothingMatches(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{
		Text: `{"pages":[{"url":"https://elsewhere.test/","reason":"?"}]}`,
	}, nil).Once()

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 2)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{root, "https://acme.test/about"}, urls(got))
}

func TestSelect_EmptyAIResultFallsBack(t *testing.T) {
	svc := mocks.NewMockService(t)
	svc.On("Invoke", mock.Anything, mock.Anything).Return(&inference.Response{Text: `{"pages":[]}`}, nil).Once()

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "malformed-response")
	assert.Len(t, got, 2)
}

func TestSelect_BudgetOneIsRootOnly(t *testing.T) {
	svc := mocks.NewMockService(t)

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 1)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{root}, urls(got))
	svc.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestSelect_SkipsAIWhenEverythingFits(t *testing.T) {
	svc := mocks.NewMockService(t)

	s := NewSelector(svc, nil, Config{})
	got, warnings := s.Select(context.Background(), root, candidates(), 10)
	assert.Empty(t, warnings)
	assert.Len(t, got, 5, "unreachable candidates are never offered")
	assert.Equal(t, root, got[0].URL)
}

func TestHeuristic_NoRoot(t *testing.T) {
	pages := []model.CandidatePage{
		{URL: "https://acme.test/b", Depth: 1, Reachable: true, Importance: 1},
		{URL: "https://acme.test/a", Depth: 1, Reachable: true, Importance: 5},
	}
	got := Heuristic(root, pages, 1)
	assert.Equal(t, []string{"https://acme.test/a"}, urls(got))
}

func TestHeuristic_Deterministic(t *testing.T) {
	a := Heuristic(root, candidates()[:4], 3)
	b := Heuristic(root, candidates()[:4], 3)
	assert.Equal(t, a, b)
}
