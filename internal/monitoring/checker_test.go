package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/config"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

func TestChecker_Check_AnnouncesHotLeadsOnce(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, HotLeadAlerts: true, LookbackWindowHours: 24}
	lister := &mockLister{runs: []model.RunSummary{
		{RunID: "hot-1", Tier: model.TierHot, CompletedAt: collectNow.Add(-time.Hour)},
	}}
	c := NewChecker(newTestCollector(lister), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, c.Check(context.Background(), zap.NewNop()))
	assert.Equal(t, 0, c.Check(context.Background(), zap.NewNop()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	c := NewChecker(newTestCollector(&mockLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}
