package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"pushlytics/api/logging"
	"pushlytics/api/models"
	"pushlytics/api/store"
)

var (
	// ErrFunnelNotFound is a definition error surfaced to the caller.
	ErrFunnelNotFound = store.ErrFunnelNotFound
	// ErrInvalidRequest marks input that cannot describe an analysis.
	ErrInvalidRequest = errors.New("invalid analytics request")
	// ErrNotImplemented marks an analysis the engine does not provide, as
	// opposed to one that computed an empty result.
	ErrNotImplemented = errors.New("analysis not implemented")
)

// BackendNone is reported when every backend failed.
const BackendNone = "none"

// FunnelRepository looks up funnel definitions owned by an organization.
type FunnelRepository interface {
	GetFunnel(ctx context.Context, orgID, funnelID string) (*models.FunnelDefinition, error)
}

// Analyzer is the analytics surface consumed by the HTTP layer.
type Analyzer interface {
	AnalyzeFunnel(ctx context.Context, req FunnelRequest) (*models.FunnelAnalysisResult, error)
	AnalyzeCohort(ctx context.Context, req CohortRequest) (*models.CohortAnalysisResult, error)
	AnalyzePaths(ctx context.Context, req PathRequest) (*models.PathAnalysisResult, error)
}

type FunnelRequest struct {
	OrgID    string
	FunnelID string
	Range    models.TimeRange
	SiteID   string
	// WindowHours overrides the definition's window when set.
	WindowHours *int
}

// Hash identifies the request for caching and result metadata.
func (r FunnelRequest) Hash() string {
	window := "def"
	if r.WindowHours != nil {
		window = fmt.Sprint(*r.WindowHours)
	}
	canonical := fmt.Sprintf("funnel|org=%s|id=%s|start=%s|end=%s|site=%s|window=%s",
		r.OrgID, r.FunnelID, r.Range.Start.UTC().Format(time.RFC3339Nano),
		r.Range.End.UTC().Format(time.RFC3339Nano), r.SiteID, window)
	return shortHash(canonical)
}

type CohortRequest struct {
	OrgID      string
	Definition models.CohortDefinition
}

// Hash identifies the request after defaults are applied.
func (r CohortRequest) Hash() string {
	def := r.Definition
	def.Offsets = append([]int(nil), def.Offsets...)
	_ = def.Normalize()
	def.Range = def.Range.UTC()
	raw, err := json.Marshal(def)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", def))
	}
	return shortHash("cohort|org=" + r.OrgID + "|" + string(raw))
}

type PathRequest struct {
	OrgID      string
	Range      models.TimeRange
	StartEvent models.EventMatcher
}

func shortHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

// EngineConfig holds request defaults.
type EngineConfig struct {
	// DefaultRange is the look-back used when a request has no start.
	DefaultRange time.Duration
}

// Engine computes funnel and cohort analyses. It holds no mutable state; every
// call is independent.
type Engine struct {
	funnels  FunnelRepository
	selector Selector
	sink     Sink
	cfg      EngineConfig
	now      func() time.Time
}

func NewEngine(funnels FunnelRepository, selector Selector, sink Sink, cfg EngineConfig) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.DefaultRange <= 0 {
		cfg.DefaultRange = 30 * 24 * time.Hour
	}
	return &Engine{funnels: funnels, selector: selector, sink: sink, cfg: cfg, now: time.Now}
}

// resolveRange fills missing bounds: end defaults to now (to the minute) and
// start to end minus the default range.
func (e *Engine) resolveRange(r models.TimeRange) (models.TimeRange, error) {
	r = r.UTC()
	if r.End.IsZero() {
		r.End = e.now().UTC().Truncate(time.Minute)
	}
	if r.Start.IsZero() {
		r.Start = r.End.Add(-e.cfg.DefaultRange)
	}
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("%w: range end is before start", ErrInvalidRequest)
	}
	return r, nil
}

func (e *Engine) AnalyzeFunnel(ctx context.Context, req FunnelRequest) (*models.FunnelAnalysisResult, error) {
	started := e.now()
	if req.OrgID == "" || req.FunnelID == "" {
		return nil, fmt.Errorf("%w: organization and funnel id are required", ErrInvalidRequest)
	}
	if req.WindowHours != nil && *req.WindowHours < 0 {
		return nil, fmt.Errorf("%w: window hours cannot be negative", ErrInvalidRequest)
	}

	def, err := e.funnels.GetFunnel(ctx, req.OrgID, req.FunnelID)
	if err != nil {
		if errors.Is(err, store.ErrFunnelNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFunnelNotFound, req.FunnelID)
		}
		return nil, fmt.Errorf("failed to load funnel %s: %w", req.FunnelID, err)
	}
	if err := def.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	rng, err := e.resolveRange(req.Range)
	if err != nil {
		return nil, err
	}
	req.Range = rng

	windowHours := def.WindowHours
	if req.WindowHours != nil {
		windowHours = *req.WindowHours
	}

	result := &models.FunnelAnalysisResult{
		FunnelID:     def.ID,
		FunnelName:   def.Name,
		Steps:        []models.FunnelStepResult{},
		WindowHours:  windowHours,
		WindowPolicy: def.WindowPolicy,
		Metadata: models.QueryMetadata{
			QueryHash:  req.Hash(),
			RangeStart: rng.Start,
			RangeEnd:   rng.End,
		},
	}

	if len(def.Steps) == 0 {
		e.finish(&result.Metadata, started)
		return result, nil
	}

	scan := store.StepScan{
		Scope: store.Scope{OrgID: req.OrgID, SiteID: req.SiteID, Range: rng},
		Steps: def.Matchers(),
	}
	window := time.Duration(windowHours) * time.Hour

	var match FunnelMatch
	backend, err := e.selector.Run(ctx, KindFunnel, func(ctx context.Context, s store.EventStore) error {
		rows, err := s.ScanSteps(ctx, scan)
		if err != nil {
			return err
		}
		match = MatchFunnel(rows, len(def.Steps), window, def.WindowPolicy)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.degrade(ctx, KindFunnel, err)
		result.Backend = BackendNone
		result.Degraded = true
		e.finish(&result.Metadata, started)
		return result, nil
	}

	result.Steps, result.ConversionRate, result.TotalUsers = AggregateFunnel(def.Steps, match)
	result.Backend = backend
	e.finish(&result.Metadata, started)

	e.sink.AnalysisCompleted(ctx, AnalysisEvent{
		Kind:       KindFunnel,
		OrgID:      req.OrgID,
		SubjectID:  def.ID,
		QueryHash:  result.Metadata.QueryHash,
		Backend:    backend,
		TotalUsers: result.TotalUsers,
		Duration:   time.Duration(result.Metadata.QueryTimeMs) * time.Millisecond,
		At:         result.Metadata.GeneratedAt,
	})
	logging.Ctx(ctx).Debug().
		Str("funnel_id", def.ID).
		Str("backend", backend).
		Int64("total_users", result.TotalUsers).
		Int64("query_time_ms", result.Metadata.QueryTimeMs).
		Msg("funnel analyzed")
	return result, nil
}

func (e *Engine) AnalyzeCohort(ctx context.Context, req CohortRequest) (*models.CohortAnalysisResult, error) {
	started := e.now()
	if req.OrgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidRequest)
	}
	def := req.Definition
	def.Offsets = append([]int(nil), def.Offsets...)
	if err := def.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	rng, err := e.resolveRange(def.Range)
	if err != nil {
		return nil, err
	}
	def.Range = rng
	req.Definition = def

	result := &models.CohortAnalysisResult{
		Kind:       def.Kind,
		Period:     def.Period,
		OffsetUnit: def.OffsetUnit,
		Cohorts:    []models.CohortBucket{},
		Summary:    models.CohortSummary{Trend: TrendInsufficient},
		Metadata: models.QueryMetadata{
			QueryHash:  req.Hash(),
			RangeStart: rng.Start,
			RangeEnd:   rng.End,
		},
	}

	var buckets []models.CohortBucket
	backend, err := e.selector.Run(ctx, KindCohort, func(ctx context.Context, s store.EventStore) error {
		out, err := e.cohorts(ctx, s, req.OrgID, def)
		if err != nil {
			return err
		}
		buckets = out
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.degrade(ctx, KindCohort, err)
		result.Backend = BackendNone
		result.Degraded = true
		e.finish(&result.Metadata, started)
		return result, nil
	}

	result.Cohorts = buckets
	result.Summary, result.RetentionRates, result.RevenueMetrics = SummarizeCohorts(def, buckets)
	result.Backend = backend
	e.finish(&result.Metadata, started)

	e.sink.AnalysisCompleted(ctx, AnalysisEvent{
		Kind:       KindCohort,
		OrgID:      req.OrgID,
		SubjectID:  string(def.Kind),
		QueryHash:  result.Metadata.QueryHash,
		Backend:    backend,
		TotalUsers: result.Summary.TotalUsers,
		Duration:   time.Duration(result.Metadata.QueryTimeMs) * time.Millisecond,
		At:         result.Metadata.GeneratedAt,
	})
	logging.Ctx(ctx).Debug().
		Str("kind", string(def.Kind)).
		Str("backend", backend).
		Int("cohorts", len(buckets)).
		Int64("query_time_ms", result.Metadata.QueryTimeMs).
		Msg("cohorts analyzed")
	return result, nil
}

// cohorts runs the assigner and the retention or revenue aggregator against one backend.
func (e *Engine) cohorts(ctx context.Context, s store.EventStore, orgID string, def models.CohortDefinition) ([]models.CohortBucket, error) {
	entries, err := s.FirstEntries(ctx, store.EntryScan{
		Scope:   store.Scope{OrgID: orgID, SiteID: def.SiteID, Range: def.Range},
		Matcher: def.Entry,
	})
	if err != nil {
		return nil, err
	}
	assignment := AssignCohorts(entries, def.Period)

	var rows []store.ActivityRow
	if activity, ok := ActivityRange(assignment, def.OffsetUnit, def.Offsets); ok {
		scan := store.ActivityScan{
			Scope:   store.Scope{OrgID: orgID, SiteID: def.SiteID, Range: activity},
			Matcher: def.Return,
		}
		if def.Kind == models.CohortRevenue {
			scan.ValueProperty = def.ValueProperty
		}
		rows, err = s.ScanActivity(ctx, scan)
		if err != nil {
			return nil, err
		}
	}

	if def.Kind == models.CohortRevenue {
		return AggregateRevenue(assignment, rows, def), nil
	}
	return AggregateRetention(assignment, rows, def), nil
}

// AnalyzePaths is not provided by this engine.
func (e *Engine) AnalyzePaths(context.Context, PathRequest) (*models.PathAnalysisResult, error) {
	return nil, ErrNotImplemented
}

func (e *Engine) degrade(ctx context.Context, kind AnalysisKind, err error) {
	logging.Ctx(ctx).Error().Err(err).Str("kind", string(kind)).Msg("analysis degraded to an empty result")
	e.sink.AnalysisFailed(ctx, kind, err)
}

func (e *Engine) finish(md *models.QueryMetadata, started time.Time) {
	now := e.now()
	md.GeneratedAt = now.UTC()
	md.QueryTimeMs = now.Sub(started).Milliseconds()
}
