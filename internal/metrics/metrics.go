package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the period pipeline. A nil *Metrics is a no-op.
type Metrics struct {
	periodRuns      *prometheus.CounterVec
	selectDuration  prometheus.Histogram
	chainDuration   *prometheus.HistogramVec
	winnerLikes     prometheus.Histogram
	lastPeriodStart prometheus.Gauge
	candidatePosts  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}
	m.periodRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defess_period_runs_total",
			Help: "period processing runs by result kind",
		},
		[]string{"kind"},
	)
	m.selectDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "defess_winner_selection_seconds",
			Help:    "time spent selecting the period winner",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.chainDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "defess_reward_issue_seconds",
			Help:    "latency of select_period_winner transactions",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"outcome"},
	)
	m.winnerLikes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "defess_winner_like_count",
			Help:    "like count of minted period winners",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	m.lastPeriodStart = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "defess_last_processed_period_start_seconds",
			Help: "start of the most recently processed period",
		},
	)
	m.candidatePosts = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "defess_period_candidate_posts",
			Help:    "posts considered per period",
			Buckets: prometheus.LinearBuckets(0, 10, 20),
		},
	)
	return m
}

func (m *Metrics) ObserveRun(kind string, periodStart int64) {
	if m == nil {
		return
	}
	m.periodRuns.WithLabelValues(kind).Inc()
	m.lastPeriodStart.Set(float64(periodStart))
}

func (m *Metrics) ObserveSelection(d time.Duration, posts int) {
	if m == nil {
		return
	}
	m.selectDuration.Observe(d.Seconds())
	m.candidatePosts.Observe(float64(posts))
}

func (m *Metrics) ObserveIssue(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.chainDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveWinner(likes int64) {
	if m == nil {
		return
	}
	m.winnerLikes.Observe(float64(likes))
}
