package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streakRecomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_streak_recompute_total",
		Help: "Streak recomputes by result (changed, unchanged, conflict, error)",
	}, []string{"result"})

	streakBreaksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kanso_streak_breaks_total",
		Help: "Streaks reset because freeze days ran out",
	})

	freezeDaysConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_freeze_days_consumed_total",
		Help: "Freeze days consumed by source (streak, manual)",
	}, []string{"source"})

	freezeCASRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_freeze_cas_retries_total",
		Help: "Freeze balance compare-and-swap retries by operation",
	}, []string{"operation"})

	overdueCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_overdue_cache_total",
		Help: "Overdue cache lookups by result (hit, miss, forced, discarded)",
	}, []string{"result"})

	overdueEvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kanso_overdue_evaluation_duration_seconds",
		Help:    "Time spent evaluating the overdue set of one user",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	severityEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_severity_evaluations_total",
		Help: "Severity states emitted by status evaluations",
	}, []string{"severity"})
)
