package intake

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/events"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/notify"
	"github.com/sells-group/uw-workbench/internal/store"
)

// defaultUnderwriter signs info requests on unassigned items.
const defaultUnderwriter = "Underwriting Team"

// Transition moves a work item to status to. Invalid moves return an error
// wrapping ErrInvalidTransition with the workflow's explanation.
func (s *Service) Transition(ctx context.Context, id string, to model.Status, reason, actor string) (*model.WorkItem, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}

	tr, err := s.machine.Apply(*item, to, reason, firstNonEmpty(actor, SystemActor), s.now())
	if err != nil {
		return nil, err
	}
	updated := tr.Item
	if err := s.store.UpdateWorkItem(ctx, &updated); err != nil {
		return nil, eris.Wrapf(err, "intake: update status of %s", id)
	}
	if err := s.store.AddHistory(ctx, tr.History); err != nil {
		return nil, eris.Wrap(err, "intake: add status history")
	}

	zap.L().Info("intake: status changed",
		zap.String("work_item_id", id),
		zap.String("from", string(item.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", tr.History.PerformedBy),
	)

	switch updated.Status {
	case model.StatusAssigned:
		if updated.AssignedTo != "" {
			msg, err := s.composer.Assignment(updated.AssignedTo, updated)
			s.notify(ctx, msg, err)
		}
	case model.StatusRejected:
		if updated.BrokerEmail != "" {
			msg, err := s.composer.Rejection(updated.BrokerEmail, updated, firstNonEmpty(reason, "Submission declined by underwriting"))
			s.notify(ctx, msg, err)
		}
	}

	s.publish(ctx, events.TypeWorkItemStatusChanged, id, map[string]any{
		"from":   string(item.Status),
		"to":     string(updated.Status),
		"reason": reason,
	})
	return &updated, nil
}

// Assign routes a work item to underwriter, or to the engine's choice when
// underwriter is empty. A pending item moves to assigned.
func (s *Service) Assign(ctx context.Context, id, underwriter, actor string) (*model.WorkItem, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	underwriter = strings.TrimSpace(underwriter)
	if underwriter == "" {
		underwriter = s.assigner.Assign(item.Fields)
	}
	updated, err := s.assignTo(ctx, *item, underwriter, firstNonEmpty(actor, SystemActor))
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Reassess re-scores a work item and replaces its current assessment. A
// nil hist falls back to the configured HistoryProvider.
func (s *Service) Reassess(ctx context.Context, id string, hist *model.HistoricalData) (*model.RiskAssessment, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = s.lookupHistory(ctx, item.Fields)
	}

	ra := s.scorer.Score(item.Fields, hist)
	item.RiskScore = &ra.OverallScore
	item.RiskCategories = &ra.Categories
	item.Priority = s.priority(ra.OverallScore)
	item.UpdatedAt = s.now()
	if err := s.store.UpdateWorkItem(ctx, item); err != nil {
		return nil, eris.Wrapf(err, "intake: update risk of %s", id)
	}
	if err := s.saveAssessment(ctx, id, ra); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeRiskAssessed, id, map[string]any{
		"overall_score": ra.OverallScore,
		"risk_level":    string(ra.RiskLevel),
		"priority":      string(item.Priority),
	})
	return &ra, nil
}

// Recommend builds the automated recommendation from the stored fields and
// the current assessment. Items never assessed are scored on the fly.
func (s *Service) Recommend(ctx context.Context, id string) (*model.Recommendation, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}

	ra, err := s.store.GetAssessment(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		scored := s.scorer.Score(item.Fields, s.lookupHistory(ctx, item.Fields))
		ra = &scored
	case err != nil:
		return nil, eris.Wrapf(err, "intake: load assessment for %s", id)
	}

	rec := s.recommender.Recommend(item.Validation, *ra, item.Fields)
	return &rec, nil
}

// RequestInfo asks the broker for missing fields. An empty missing list
// uses the fields validation reported. The item moves to pending_info when
// the workflow allows it; otherwise only its timestamp is refreshed.
func (s *Service) RequestInfo(ctx context.Context, id, underwriter string, missing []string) (*notify.Message, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.BrokerEmail == "" {
		return nil, eris.Wrapf(ErrInvalidRequest, "work item %s has no broker email", id)
	}
	if len(missing) == 0 {
		missing = item.Validation.MissingFields
	}
	if len(missing) == 0 {
		return nil, eris.Wrapf(ErrInvalidRequest, "work item %s has no missing fields to request", id)
	}
	underwriter = firstNonEmpty(strings.TrimSpace(underwriter), item.AssignedTo, defaultUnderwriter)

	msg, err := s.composer.InfoRequest(item.BrokerEmail, *item, underwriter, missing)
	if err != nil {
		return nil, eris.Wrap(err, "intake: compose info request")
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		return nil, eris.Wrap(err, "intake: send info request")
	}

	now := s.now()
	if err := s.store.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  id,
		Action:      model.HistoryCommented,
		PerformedBy: underwriter,
		Description: fmt.Sprintf("Requested information from %s: %s", item.BrokerEmail, strings.Join(missing, ", ")),
		Details:     map[string]any{"missing_fields": missing, "recipient": item.BrokerEmail},
		CreatedAt:   now,
	}); err != nil {
		return nil, eris.Wrap(err, "intake: add info request history")
	}

	if slices.Contains(s.machine.AllowedTransitions(item.Status), model.StatusPendingInfo) {
		if _, err := s.Transition(ctx, id, model.StatusPendingInfo, "Awaiting broker information", underwriter); err != nil {
			return nil, err
		}
		return &msg, nil
	}
	item.UpdatedAt = now
	if err := s.store.UpdateWorkItem(ctx, item); err != nil {
		return nil, eris.Wrapf(err, "intake: touch %s", id)
	}
	return &msg, nil
}
