package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/resilience"
	"github.com/sells-group/uw-workbench/internal/store"
)

// SyncPolicy pushes a work item to the policy system and stores the
// returned account and job references. A transient failure is queued as a
// dead letter for the scheduler to retry; permanent failures are only
// returned.
func (s *Service) SyncPolicy(ctx context.Context, id string) (*model.PolicyRef, error) {
	if s.policy == nil {
		return nil, ErrPolicySyncDisabled
	}
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}

	ref, err := s.pushPolicy(ctx, item)
	if err != nil {
		entry := resilience.NewDLQEntry(id, OperationSyncPolicy, err, s.syncMaxRetries, s.syncRetry, s.now())
		if entry.ErrorType == resilience.ErrorTransient {
			if qerr := s.store.EnqueueSyncFailure(ctx, entry); qerr != nil {
				zap.L().Error("intake: enqueue sync failure", zap.String("work_item_id", id), zap.Error(qerr))
			} else {
				zap.L().Warn("intake: policy sync queued for retry",
					zap.String("work_item_id", id),
					zap.Time("next_retry_at", entry.NextRetryAt),
					zap.Error(err),
				)
			}
		}
		return nil, eris.Wrapf(err, "intake: sync policy for %s", id)
	}
	return ref, nil
}

// RetrySync replays one dead letter. Success resolves it; failure pushes
// the next attempt out by one backoff step. A missing work item resolves
// the entry since nothing is left to sync.
func (s *Service) RetrySync(ctx context.Context, entry resilience.DLQEntry) error {
	if s.policy == nil {
		return ErrPolicySyncDisabled
	}
	item, err := s.store.GetWorkItem(ctx, entry.WorkItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrap(s.store.ResolveSyncFailure(ctx, entry.ID), "intake: resolve orphaned sync failure")
		}
		return err
	}

	if _, err := s.pushPolicy(ctx, item); err != nil {
		now := s.now()
		if bumpErr := s.store.BumpSyncFailure(ctx, entry.ID, entry.NextRetry(s.syncRetry, now), err.Error()); bumpErr != nil {
			return eris.Wrap(bumpErr, "intake: bump sync failure")
		}
		if entry.RetryCount+1 >= entry.MaxRetries {
			zap.L().Error("intake: policy sync retries exhausted",
				zap.String("work_item_id", entry.WorkItemID),
				zap.Int("retries", entry.RetryCount+1),
				zap.Error(err),
			)
		}
		return eris.Wrapf(err, "intake: retry sync for %s", entry.WorkItemID)
	}
	return eris.Wrap(s.store.ResolveSyncFailure(ctx, entry.ID), "intake: resolve sync failure")
}

func (s *Service) pushPolicy(ctx context.Context, item *model.WorkItem) (*model.PolicyRef, error) {
	ref, err := s.policy.Sync(ctx, *item)
	if err != nil {
		return nil, err
	}
	ref.SyncedAt = s.now()
	item.Policy = &ref
	item.UpdatedAt = ref.SyncedAt
	if err := s.store.UpdateWorkItem(ctx, item); err != nil {
		return nil, eris.Wrapf(err, "intake: store policy refs for %s", item.ID)
	}
	if err := s.store.AddHistory(ctx, model.HistoryEntry{
		WorkItemID:  item.ID,
		Action:      model.HistoryUpdated,
		PerformedBy: SystemActor,
		Description: fmt.Sprintf("Synced to policy system: account %s, job %s", ref.AccountNumber, ref.JobNumber),
		Details: map[string]any{
			"field":          "policy",
			"account_id":     ref.AccountID,
			"account_number": ref.AccountNumber,
			"job_id":         ref.JobID,
			"job_number":     ref.JobNumber,
		},
		CreatedAt: ref.SyncedAt,
	}); err != nil {
		return nil, eris.Wrap(err, "intake: add sync history")
	}
	zap.L().Info("intake: policy synced",
		zap.String("work_item_id", item.ID),
		zap.String("account_number", ref.AccountNumber),
		zap.String("job_number", ref.JobNumber),
	)
	return &ref, nil
}
