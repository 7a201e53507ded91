package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attendance module.
// Tracks recorded attendance by channel and the duration of the read paths.
type Metrics struct {
	RecordsCreated     *prometheus.CounterVec
	CardScans          *prometheus.CounterVec
	TokensIssued       prometheus.Counter
	TokenValidations   *prometheus.CounterVec
	TokensSwept        prometheus.Counter
	BulkRecorded       *prometheus.CounterVec
	StatisticsDuration prometheus.Histogram
	AbsenceDuration    prometheus.Histogram
}

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// New registers the attendance metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_attendance_records_created_total",
			Help: "Attendance records created, by check-in method",
		}, []string{"method"}),
		CardScans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_card_scans_total",
			Help: "Card scans processed, by outcome (CHECKED_IN, CHECKED_OUT, conflict)",
		}, []string{"outcome"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_qr_tokens_issued_total",
			Help: "QR capability tokens issued",
		}),
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_qr_token_validations_total",
			Help: "QR token validations, by result (valid, expired, unknown)",
		}, []string{"result"}),
		TokensSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_qr_tokens_swept_total",
			Help: "Expired QR tokens removed by the cleanup worker",
		}),
		BulkRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_bulk_recordings_total",
			Help: "Bulk recordings accepted, by form (entries, headcount)",
		}, []string{"form"}),
		StatisticsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_statistics_duration_seconds",
			Help:    "Duration of statistics generation",
			Buckets: durationBuckets,
		}),
		AbsenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_absence_scan_duration_seconds",
			Help:    "Duration of absence detection for one branch",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementRecordsCreated(method string, n int) {
	m.RecordsCreated.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) IncrementCardScan(outcome string) {
	m.CardScans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTokenIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementTokenValidation(result string) {
	m.TokenValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) AddTokensSwept(n int64) {
	m.TokensSwept.Add(float64(n))
}

func (m *Metrics) IncrementBulkRecorded(form string) {
	m.BulkRecorded.WithLabelValues(form).Inc()
}

// ObserveStatistics records the duration of a statistics request.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStatistics(start time.Time) {
	m.StatisticsDuration.Observe(time.Since(start).Seconds())
}

// ObserveAbsence records the duration of an absence scan.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAbsence(start time.Time) {
	m.AbsenceDuration.Observe(time.Since(start).Seconds())
}
