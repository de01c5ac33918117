package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeMerged   = "merged"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the complaint pipeline.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	SubmitDuration     prometheus.Histogram
	TransitionDuration prometheus.Histogram
	RetentionPurged    prometheus.Counter
	RetentionFailed    prometheus.Counter
	NotifyFailed       prometheus.Counter
	ProfanityMatches   prometheus.Counter
}

// New registers the complaint metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_complaint_submissions_total",
			Help: "Complaint submissions by outcome",
		}, []string{"outcome"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_complaint_transitions_total",
			Help: "Committed complaint transitions by target status",
		}, []string{"to"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicdesk_complaint_submit_duration_seconds",
			Help:    "Duration of Submit operations",
			Buckets: latencyBuckets,
		}),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicdesk_complaint_transition_duration_seconds",
			Help:    "Duration of Transition operations",
			Buckets: latencyBuckets,
		}),
		RetentionPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_retention_purged_entries_total",
			Help: "Audit log entries removed by the retention sweeper",
		}),
		RetentionFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_retention_failed_sweeps_total",
			Help: "Retention sweeps that failed and were deferred to the next tick",
		}),
		NotifyFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_notify_failures_total",
			Help: "Status change notifications that could not be handed off",
		}),
		ProfanityMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_moderation_profanity_matches_total",
			Help: "Profanity lexicon hits across screened descriptions, rejected ones included",
		}),
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTransition(to string) {
	m.Transitions.WithLabelValues(to).Inc()
}

// ObserveSubmit records the duration of a Submit call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// ObserveTransition records the duration of a Transition call.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddRetentionPurged(n int) {
	m.RetentionPurged.Add(float64(n))
}

func (m *Metrics) IncrementRetentionFailed() {
	m.RetentionFailed.Inc()
}

func (m *Metrics) IncrementNotifyFailed() {
	m.NotifyFailed.Inc()
}

// AddProfanityMatches counts lexicon hits from one screening.
func (m *Metrics) AddProfanityMatches(n int) {
	m.ProfanityMatches.Add(float64(n))
}
