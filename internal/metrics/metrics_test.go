package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun("success", 1800)
	m.ObserveRun("success", 3600)
	m.ObserveRun("no_winner", 5400)

	if got := testutil.ToFloat64(m.periodRuns.WithLabelValues("success")); got != 2 {
		t.Fatalf("success runs=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.lastPeriodStart); got != 5400 {
		t.Fatalf("last period=%v want 5400", got)
	}
}

func TestMetrics_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveIssue(time.Second, nil)
	m.ObserveIssue(time.Second, errors.New("x"))
	m.ObserveSelection(10*time.Millisecond, 3)
	m.ObserveWinner(5)

	n, err := testutil.GatherAndCount(reg, "defess_reward_issue_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("issue series=%d want 2", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun("success", 0)
	m.ObserveSelection(time.Second, 1)
	m.ObserveIssue(time.Second, nil)
	m.ObserveWinner(1)
}
