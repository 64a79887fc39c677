package observability

import "github.com/prometheus/client_golang/prometheus"

// Workflow outcomes used as the "outcome" label.
const (
	OutcomeSuccess            = "success"
	OutcomeReplayed           = "replayed"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeInsufficientCredit = "insufficient_credit"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeExtractionFailed   = "extraction_failed"
	OutcomeAnalysisFailed     = "analysis_failed"
	OutcomeRenderFailed       = "render_failed"
	OutcomeNotFound           = "not_found"
	OutcomeError              = "error"
)

var (
	// AnalysisRuns counts analysis workflow runs by outcome.
	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dogblood_analysis_runs_total",
			Help: "Analysis workflow runs by outcome.",
		},
		[]string{"outcome"},
	)

	// AnalysisStepDuration observes each outbound step (extract, analyze, render).
	AnalysisStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dogblood_analysis_step_duration_seconds",
			Help:    "Duration of analysis workflow steps.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"step"},
	)

	// ChatQuestions counts follow-up questions by outcome.
	ChatQuestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dogblood_chat_questions_total",
			Help: "Follow-up questions by outcome.",
		},
		[]string{"outcome"},
	)

	CreditsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dogblood_credits_consumed_total",
		Help: "Credits consumed by committed analyses.",
	})

	CreditsGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dogblood_credits_granted_total",
		Help: "Credits granted by reconciled payments.",
	})

	// AnalysisSlotsInUse gauges held outbound concurrency slots.
	AnalysisSlotsInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dogblood_analysis_slots_in_use",
		Help: "Outbound workflow slots currently held.",
	})
)

func init() {
	prometheus.MustRegister(AnalysisRuns, AnalysisStepDuration, ChatQuestions, CreditsConsumed, CreditsGranted, AnalysisSlotsInUse)
}
