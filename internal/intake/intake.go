package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/events"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

// Request is one inbound submission. When Fields is nil the subject and
// body are sent to the Extractor.
type Request struct {
	MessageID string       `json:"message_id"`
	From      string       `json:"from"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Fields    model.Fields `json:"extracted_fields,omitempty"`
}

// Result is the persisted outcome of an intake.
type Result struct {
	WorkItem       model.WorkItem       `json:"work_item"`
	Assessment     model.RiskAssessment `json:"risk_assessment"`
	Recommendation model.Recommendation `json:"recommendation"`
}

// Intake de-duplicates, extracts, evaluates, routes and persists a
// submission, then notifies and publishes work_item.created.
func (s *Service) Intake(ctx context.Context, req Request) (*Result, error) {
	first, err := s.deduper.FirstSeen(ctx, req.MessageID)
	if err != nil {
		return nil, eris.Wrap(err, "intake: dedupe")
	}
	if !first {
		return nil, eris.Wrapf(ErrDuplicate, "intake: message %s", req.MessageID)
	}

	res, err := s.create(ctx, req)
	if err != nil {
		// Release the id so a retry of the same message is not a duplicate.
		if fErr := s.deduper.Forget(context.WithoutCancel(ctx), req.MessageID); fErr != nil {
			zap.L().Warn("intake: release message id", zap.String("message_id", req.MessageID), zap.Error(fErr))
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) create(ctx context.Context, req Request) (*Result, error) {
	var err error
	fields := req.Fields
	if fields == nil && s.extractor != nil {
		fields, err = s.extractor.Extract(ctx, emailText(req))
		if err != nil {
			return nil, eris.Wrap(err, "intake: extract fields")
		}
	}
	if fields == nil {
		fields = model.Fields{}
	}

	ev := s.Evaluate(fields, s.lookupHistory(ctx, fields))
	sub := normalize.Submission(fields)
	now := s.now()

	item := model.WorkItem{
		ID:             uuid.NewString(),
		SubmissionRef:  req.MessageID,
		Title:          title(req, sub),
		BrokerEmail:    firstNonEmpty(strings.TrimSpace(req.From), sub.ContactEmail),
		Status:         model.StatusPending,
		Priority:       ev.Priority,
		RiskScore:      &ev.Assessment.OverallScore,
		RiskCategories: &ev.Assessment.Categories,
		Industry:       sub.Industry,
		CompanySize:    sub.CompanySize,
		PolicyType:     sub.PolicyType,
		CoverageAmount: sub.CoverageAmount,
		Validation:     ev.Validation,
		Fields:         fields.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if item.SubmissionRef == "" {
		item.SubmissionRef = item.ID
	}
	if ev.Validation.Status == model.ValidationRejected {
		item.Status = model.StatusRejected
	}

	if err := s.store.CreateWorkItem(ctx, &item); err != nil {
		return nil, eris.Wrap(err, "intake: create work item")
	}
	if err := s.store.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  item.ID,
		Action:      model.HistoryCreated,
		PerformedBy: SystemActor,
		Description: "Work item created from " + firstNonEmpty(item.BrokerEmail, "unknown sender"),
		Details: map[string]any{
			"validation_status": string(ev.Validation.Status),
			"missing_fields":    ev.Validation.MissingFields,
			"rejection_reason":  ev.Validation.Reason,
			"priority":          string(ev.Priority),
		},
		CreatedAt: now,
	}); err != nil {
		return nil, eris.Wrap(err, "intake: add created history")
	}

	if err := s.saveAssessment(ctx, item.ID, ev.Assessment); err != nil {
		return nil, err
	}

	if ev.Validation.Complete() {
		underwriter := s.assigner.Assign(fields)
		updated, err := s.assignTo(ctx, item, underwriter, SystemActor)
		if err != nil {
			return nil, err
		}
		item = updated
	}

	zap.L().Info("intake: work item created",
		zap.String("work_item_id", item.ID),
		zap.String("validation_status", string(ev.Validation.Status)),
		zap.String("status", string(item.Status)),
		zap.String("assigned_to", item.AssignedTo),
		zap.Float64("risk_score", ev.Assessment.OverallScore),
	)

	if item.Status == model.StatusRejected && item.BrokerEmail != "" {
		msg, err := s.composer.Rejection(item.BrokerEmail, item, ev.Validation.Reason)
		s.notify(ctx, msg, err)
	}

	s.publish(ctx, events.TypeWorkItemCreated, item.ID, map[string]any{
		"status":            string(item.Status),
		"priority":          string(item.Priority),
		"validation_status": string(ev.Validation.Status),
		"risk_score":        ev.Assessment.OverallScore,
		"assigned_to":       item.AssignedTo,
	})

	return &Result{WorkItem: item, Assessment: ev.Assessment, Recommendation: ev.Recommendation}, nil
}

func (s *Service) saveAssessment(ctx context.Context, workItemID string, ra model.RiskAssessment) error {
	if err := s.store.SaveAssessment(ctx, workItemID, ra); err != nil {
		return eris.Wrap(err, "intake: save assessment")
	}
	err := s.store.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  workItemID,
		Action:      model.HistoryRiskAssessed,
		PerformedBy: SystemActor,
		Description: fmt.Sprintf("Risk assessed by %s scorer: %s (%s)", ra.Scorer, normalize.Grouped(ra.OverallScore, 1), ra.RiskLevel),
		Details: map[string]any{
			"overall_score": ra.OverallScore,
			"risk_level":    string(ra.RiskLevel),
			"confidence":    ra.ConfidenceScore,
		},
		CreatedAt: s.now(),
	})
	return eris.Wrap(err, "intake: add risk history")
}

// assignTo sets the underwriter, moves a pending item to assigned and
// notifies the underwriter. Non-pending items keep their status.
func (s *Service) assignTo(ctx context.Context, item model.WorkItem, underwriter, actor string) (model.WorkItem, error) {
	if s.machine.IsTerminal(item.Status) {
		return item, eris.Wrapf(ErrInvalidTransition, "cannot assign work item in %s status", item.Status)
	}

	previous := item.AssignedTo
	item.AssignedTo = underwriter
	now := s.now()

	var statusEntry *model.HistoryEntry
	if item.Status == model.StatusPending {
		tr, err := s.machine.Apply(item, model.StatusAssigned, "", actor, now)
		if err != nil {
			return item, err
		}
		item = tr.Item
		statusEntry = &tr.History
	}
	item.UpdatedAt = now

	if err := s.store.UpdateWorkItem(ctx, &item); err != nil {
		return item, eris.Wrapf(err, "intake: assign %s", item.ID)
	}
	if statusEntry != nil {
		if err := s.store.AddHistory(ctx, *statusEntry); err != nil {
			return item, eris.Wrap(err, "intake: add status history")
		}
	}
	if err := s.store.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  item.ID,
		Action:      model.HistoryAssigned,
		PerformedBy: actor,
		Description: "Assigned to " + underwriter,
		Details: map[string]any{
			"field":     "assigned_to",
			"old_value": previous,
			"new_value": underwriter,
		},
		CreatedAt: now,
	}); err != nil {
		return item, eris.Wrap(err, "intake: add assignment history")
	}

	if underwriter != rules.SystemAssignment {
		msg, err := s.composer.Assignment(underwriter, item)
		s.notify(ctx, msg, err)
	}
	s.publish(ctx, events.TypeWorkItemAssigned, item.ID, map[string]any{
		"assigned_to": underwriter,
		"status":      string(item.Status),
	})
	return item, nil
}

// emailText is the extractor prompt input for one message.
func emailText(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email Subject: %s\n", firstNonEmpty(req.Subject, "No subject"))
	fmt.Fprintf(&b, "From: %s\n", firstNonEmpty(req.From, "Unknown sender"))
	fmt.Fprintf(&b, "Email Body:\n%s\n", firstNonEmpty(req.Body, "No body content"))
	return b.String()
}

func title(req Request, sub model.Submission) string {
	return firstNonEmpty(strings.TrimSpace(req.Subject), sub.InsuredName, "Email Submission")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
