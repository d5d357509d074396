// Package intake turns inbound broker submissions into scored, routed work
// items and drives them through the underwriting workflow.
package intake

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/assign"
	"github.com/sells-group/uw-workbench/internal/events"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/notify"
	"github.com/sells-group/uw-workbench/internal/recommend"
	"github.com/sells-group/uw-workbench/internal/resilience"
	"github.com/sells-group/uw-workbench/internal/risk"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/store"
	"github.com/sells-group/uw-workbench/internal/validate"
	"github.com/sells-group/uw-workbench/internal/workflow"
)

// SystemActor is recorded on history entries the pipeline writes itself.
const SystemActor = "System"

// OperationSyncPolicy names policy-system pushes in the dead-letter table.
const OperationSyncPolicy = "sync_policy"

var (
	// ErrDuplicate is returned when an inbound message id was already seen.
	ErrDuplicate = eris.New("duplicate submission")
	// ErrInvalidTransition is returned for a status change the workflow
	// does not allow.
	ErrInvalidTransition = workflow.ErrInvalidTransition
	// ErrInvalidRequest is returned when a caller supplies unusable input.
	ErrInvalidRequest = eris.New("invalid request")
	// ErrPolicySyncDisabled is returned by SyncPolicy when no policy system
	// is configured.
	ErrPolicySyncDisabled = eris.New("policy system not configured")
)

// Extractor pulls structured fields out of free-form submission text.
type Extractor interface {
	Extract(ctx context.Context, text string) (model.Fields, error)
}

// HistoryProvider looks up prior claims for a submission. A nil result
// means no history is on file.
type HistoryProvider interface {
	History(ctx context.Context, fields model.Fields) (*model.HistoricalData, error)
}

// PolicySyncer pushes a work item to the policy administration system.
type PolicySyncer interface {
	Sync(ctx context.Context, item model.WorkItem) (model.PolicyRef, error)
}

// Service wires the decision engine to persistence, notification and
// events.
type Service struct {
	store       store.Store
	tables      *rules.Tables
	validator   *validate.Validator
	scorer      risk.Scorer
	assigner    *assign.Engine
	machine     *workflow.Machine
	recommender *recommend.Engine
	composer    *notify.Composer

	notifier  notify.Notifier
	publisher events.Publisher
	deduper   events.Deduper
	extractor Extractor
	history   HistoryProvider
	policy    PolicySyncer

	syncRetry         resilience.RetryConfig
	syncMaxRetries    int
	normalizePriority bool
	now               func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithScorer overrides the enhanced scorer.
func WithScorer(s risk.Scorer) Option {
	return func(svc *Service) {
		if s != nil {
			svc.scorer = s
		}
	}
}

// WithAssigner overrides the assignment engine, typically to inject a
// deterministic picker.
func WithAssigner(a *assign.Engine) Option {
	return func(svc *Service) {
		if a != nil {
			svc.assigner = a
		}
	}
}

// WithNotifier sets the notification channel. Defaults to LogNotifier.
func WithNotifier(n notify.Notifier) Option {
	return func(svc *Service) {
		if n != nil {
			svc.notifier = n
		}
	}
}

// WithPublisher sets the event publisher. Defaults to events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(svc *Service) {
		if p != nil {
			svc.publisher = p
		}
	}
}

// WithDeduper sets the inbound message guard. Defaults to an in-memory
// guard.
func WithDeduper(d events.Deduper) Option {
	return func(svc *Service) {
		if d != nil {
			svc.deduper = d
		}
	}
}

// WithExtractor enables field extraction for requests without fields.
func WithExtractor(e Extractor) Option {
	return func(svc *Service) { svc.extractor = e }
}

// WithHistoryProvider enables claims-history lookups.
func WithHistoryProvider(h HistoryProvider) Option {
	return func(svc *Service) { svc.history = h }
}

// WithPolicySyncer enables SyncPolicy.
func WithPolicySyncer(p PolicySyncer) Option {
	return func(svc *Service) { svc.policy = p }
}

// WithSyncRetry sets the dead-letter backoff and retry budget for failed
// policy pushes.
func WithSyncRetry(cfg resilience.RetryConfig, maxRetries int) Option {
	return func(svc *Service) {
		svc.syncRetry = cfg
		if maxRetries > 0 {
			svc.syncMaxRetries = maxRetries
		}
	}
}

// WithNormalizedPriority divides the overall score by 100 before the
// priority lookup.
func WithNormalizedPriority(on bool) Option {
	return func(svc *Service) { svc.normalizePriority = on }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// New returns a Service backed by st and tables.
func New(st store.Store, tables *rules.Tables, opts ...Option) *Service {
	svc := &Service{
		store:       st,
		tables:      tables,
		validator:   validate.New(tables),
		scorer:      risk.NewEnhanced(),
		assigner:    assign.New(tables),
		machine:     workflow.New(tables),
		recommender: recommend.New(tables),
		composer:    notify.NewComposer(tables),
		notifier:    notify.LogNotifier{},
		publisher:   events.Nop{},
		deduper:     events.NewMemoryDeduper(events.DefaultDedupeTTL),
		syncRetry: resilience.RetryConfig{
			InitialBackoff: time.Minute,
			MaxBackoff:     time.Hour,
			Multiplier:     2,
		},
		syncMaxRetries: 5,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Machine exposes the workflow state machine.
func (s *Service) Machine() *workflow.Machine { return s.machine }

// Assigner exposes the assignment engine.
func (s *Service) Assigner() *assign.Engine { return s.assigner }

// Evaluation is the stateless decision for one field map.
type Evaluation struct {
	Validation     model.ValidationResult `json:"validation"`
	Assessment     model.RiskAssessment   `json:"risk_assessment"`
	Priority       model.Priority         `json:"priority"`
	Recommendation model.Recommendation   `json:"recommendation"`
	Routing        assign.Recommendation  `json:"routing"`
}

// Evaluate validates, scores and recommends fields without persisting
// anything. Auto-reject rules only override a Complete validation, so an
// incomplete submission is asked for its missing fields first.
func (s *Service) Evaluate(fields model.Fields, hist *model.HistoricalData) Evaluation {
	vr := s.validator.Validate(fields)
	if vr.Status == model.ValidationComplete {
		if reject, reason := s.tables.ShouldAutoReject(fields); reject {
			vr = model.ValidationResult{Status: model.ValidationRejected, MissingFields: []string{}, Reason: reason}
		}
	}

	ra := s.scorer.Score(fields, hist)
	return Evaluation{
		Validation:     vr,
		Assessment:     ra,
		Priority:       s.priority(ra.OverallScore),
		Recommendation: s.recommender.Recommend(vr, ra, fields),
		Routing:        s.assigner.Recommendations(fields),
	}
}

func (s *Service) priority(score float64) model.Priority {
	if s.normalizePriority {
		score /= 100
	}
	return s.tables.PriorityForRiskScore(score)
}

// lookupHistory treats provider failures as "no history" so scoring still
// proceeds.
func (s *Service) lookupHistory(ctx context.Context, fields model.Fields) *model.HistoricalData {
	if s.history == nil {
		return nil
	}
	hist, err := s.history.History(ctx, fields)
	if err != nil {
		zap.L().Warn("intake: history lookup failed", zap.Error(err))
		return nil
	}
	return hist
}

func (s *Service) notify(ctx context.Context, msg notify.Message, err error) {
	if err != nil {
		zap.L().Warn("intake: compose notification", zap.String("work_item_id", msg.WorkItemID), zap.Error(err))
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		zap.L().Warn("intake: deliver notification",
			zap.String("template", msg.Template),
			zap.String("work_item_id", msg.WorkItemID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, typ, workItemID string, data map[string]any) {
	ev := events.Event{Type: typ, WorkItemID: workItemID, Data: data, OccurredAt: s.now()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		zap.L().Warn("intake: publish event", zap.String("type", typ), zap.String("work_item_id", workItemID), zap.Error(err))
	}
}
