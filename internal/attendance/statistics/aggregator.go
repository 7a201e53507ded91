// Package statistics turns recorded attendance into period-bucketed series,
// demographic breakdowns and an attendance frequency histogram.
package statistics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/attendance/metrics"
	"rollcall/internal/attendance/models"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/requestcontext"
)

// FactSource loads the rows the aggregator works on. Every implementation
// filters by scope with a fixed statement per scope combination.
type FactSource interface {
	// Facts returns attendance joined with session and member attributes for
	// sessions dated q.From..q.To inclusive.
	Facts(ctx context.Context, q models.FactQuery) ([]models.AttendanceFact, error)
	// VisitorsBefore returns the visitor identities recorded in scope at
	// sessions dated strictly before before.
	VisitorsBefore(ctx context.Context, scope models.Scope, before time.Time) ([]models.Visitor, error)
}

// Aggregator is stateless; one instance serves concurrent requests.
type Aggregator struct {
	facts   FactSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	tracer  trace.Tracer
}

type Option func(a *Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithClock fixes "now" for age calculation.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

func New(facts FactSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		facts:  facts,
		tracer: otel.Tracer("rollcall/attendance/statistics"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// Generate builds the report. Identical input over unchanged data yields an
// identical report.
func (a *Aggregator) Generate(ctx context.Context, req models.StatisticsRequest) (*models.StatisticsReport, error) {
	if a.metrics != nil {
		defer a.metrics.ObserveStatistics(time.Now())
	}
	ctx, span := a.tracer.Start(ctx, "statistics.Generate", trace.WithAttributes(
		attribute.String("period", string(req.Period)),
		attribute.Int("kinds", len(req.Kinds)),
	))
	defer span.End()

	report, err := a.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics generation failed")
		return nil, err
	}
	return report, nil
}

func (a *Aggregator) generate(ctx context.Context, req models.StatisticsRequest) (*models.StatisticsReport, error) {
	kinds, err := validate(req)
	if err != nil {
		return nil, err
	}
	from, to := models.DateOnly(req.From), models.DateOnly(req.To)
	baselineFrom, baselineTo := previousPeriod(req.Period, from)
	needBaseline := slices.Contains(kinds, models.StatGrowthRate) || slices.Contains(kinds, models.StatRetentionRate)
	needHistory := slices.Contains(kinds, models.StatFirstTimeVisitors)

	var (
		facts    []models.AttendanceFact
		baseline []models.AttendanceFact
		history  []models.Visitor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		facts, err = a.facts.Facts(gctx, models.FactQuery{From: from, To: to, Scope: req.Scope})
		return err
	})
	if needBaseline {
		g.Go(func() error {
			var err error
			baseline, err = a.facts.Facts(gctx, models.FactQuery{From: baselineFrom, To: baselineTo, Scope: req.Scope})
			return err
		})
	}
	if needHistory {
		g.Go(func() error {
			var err error
			history, err = a.facts.VisitorsBefore(gctx, req.Scope, from)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance facts")
	}

	sortFacts(facts)
	ds := &dataset{
		period:             req.Period,
		buckets:            bucketize(req.Period, facts),
		baseline:           baseline,
		baselineStart:      baselineFrom,
		chronological:      chronological(facts),
		historicalVisitors: make(map[string]struct{}, len(history)),
	}
	for _, v := range history {
		if key := VisitorKey(v); key != "" {
			ds.historicalVisitors[key] = struct{}{}
		}
	}

	series := make([]models.Series, 0, len(kinds))
	for _, k := range kinds {
		series = append(series, models.Series{Kind: k, Values: kindFuncs[k](ds)})
	}

	now := a.now(ctx)
	report := &models.StatisticsReport{
		From:         from.Format(models.DateLayout),
		To:           to.Format(models.DateLayout),
		Period:       req.Period,
		Series:       series,
		Demographics: demographics(facts, now),
		Frequency:    frequency(facts),
	}
	a.logger.DebugContext(ctx, "statistics generated",
		"period", string(req.Period),
		"facts", len(facts),
		"buckets", len(ds.buckets),
	)
	return report, nil
}

func (a *Aggregator) now(ctx context.Context) time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return requestcontext.Now(ctx)
}

// validate checks the request and returns the kinds to compute, de-duplicated
// in request order. No kinds means all of them.
func validate(req models.StatisticsRequest) ([]models.StatisticKind, error) {
	if req.From.IsZero() || req.To.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	if models.DateOnly(req.To).Before(models.DateOnly(req.From)) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not precede from")
	}
	if req.Scope.OrganisationID == nil && req.Scope.BranchID == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "organisation_id or branch_id is required")
	}
	if !req.Period.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown period")
	}
	if len(req.Kinds) == 0 {
		return slices.Clone(models.AllStatisticKinds), nil
	}
	seen := make(map[models.StatisticKind]struct{}, len(req.Kinds))
	kinds := make([]models.StatisticKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown statistic kind: "+string(k))
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// sortFacts orders facts by session date, check-in time and record ID.
func sortFacts(facts []models.AttendanceFact) {
	slices.SortFunc(facts, func(a, b models.AttendanceFact) int {
		if c := a.SessionDate.Compare(b.SessionDate); c != 0 {
			return c
		}
		if c := a.CheckInTime.Compare(b.CheckInTime); c != 0 {
			return c
		}
		return cmp.Compare(a.RecordID.String(), b.RecordID.String())
	})
}

func chronological(facts []models.AttendanceFact) []models.AttendanceFact {
	out := slices.Clone(facts)
	slices.SortStableFunc(out, func(a, b models.AttendanceFact) int {
		return a.CheckInTime.Compare(b.CheckInTime)
	})
	return out
}

// bucketize groups sorted facts by period label. Buckets come out ordered by
// the earliest session date they contain.
func bucketize(p models.Period, facts []models.AttendanceFact) []bucket {
	index := make(map[string]int)
	var buckets []bucket
	for _, f := range facts {
		label := Label(p, f.SessionDate)
		i, ok := index[label]
		if !ok {
			i = len(buckets)
			index[label] = i
			buckets = append(buckets, bucket{label: label, start: periodStart(p, f.SessionDate)})
		}
		buckets[i].facts = append(buckets[i].facts, f)
	}
	return buckets
}
