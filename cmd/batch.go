package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/workbook"
	"github.com/sells-group/uw-workbench/pkg/anthropic"
	"github.com/sells-group/uw-workbench/pkg/notion"
)

var (
	batchLimit  int
	batchXLSX   string
	batchSheet  string
	batchNotion bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Intake many submissions from a bordereau spreadsheet or the Notion queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (batchXLSX == "") == !batchNotion {
			return eris.New("exactly one of --xlsx or --notion is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		var items []batchItem
		var done outcomeFunc
		if batchXLSX != "" {
			items, err = xlsxItems(ctx, batchXLSX, workbook.Options{SheetName: batchSheet})
		} else {
			if env.Queue == nil {
				return eris.New("notion.submission_db is not configured")
			}
			items, err = notionItems(ctx, env.Queue, env.Extractor)
			done = notionOutcome(env.Queue)
		}
		if err != nil {
			return err
		}

		_, err = processBatch(ctx, items, batchLimit, cfg.Batch.MaxConcurrent, env.Service.Intake, done)
		return err
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of submissions to process")
	batchCmd.Flags().StringVar(&batchXLSX, "xlsx", "", "bordereau spreadsheet whose header row names the fields")
	batchCmd.Flags().StringVar(&batchSheet, "sheet", "", "sheet name (default first sheet)")
	batchCmd.Flags().BoolVar(&batchNotion, "notion", false, "read queued submissions from the Notion database")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one submission to intake. PageID is set for Notion rows.
type batchItem struct {
	Request intake.Request
	PageID  string
	// Err is a failure found before intake, such as a failed extraction.
	Err error
}

// intakeFunc is the callback signature for intaking one submission.
type intakeFunc func(ctx context.Context, req intake.Request) (*intake.Result, error)

// outcomeFunc receives every processed item. res is nil when err is set.
type outcomeFunc func(ctx context.Context, item batchItem, res *intake.Result, err error)

type batchStats struct {
	Succeeded int64
	Duplicate int64
	Failed    int64
}

func xlsxItems(ctx context.Context, path string, opts workbook.Options) ([]batchItem, error) {
	rowCh, errCh := workbook.StreamSubmissions(ctx, path, opts)
	base := filepath.Base(path)

	var items []batchItem
	for row := range rowCh {
		items = append(items, batchItem{Request: intake.Request{
			MessageID: fmt.Sprintf("xlsx:%s:%d", base, row.Line),
			From:      fieldString(row.Fields, model.FieldContactEmail),
			Subject:   fieldString(row.Fields, model.FieldInsuredName),
			Fields:    row.Fields,
		}})
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return items, nil
}

func fieldString(f model.Fields, key string) string {
	s, _ := f.Get(key).(string)
	return s
}

// notionItems loads queued pages. Rows with only an email body are
// extracted in one batch when an extractor is configured.
func notionItems(ctx context.Context, q *notion.Queue, ex *anthropic.Extractor) ([]batchItem, error) {
	subs, err := q.Pending(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "query queued submissions")
	}

	items := make([]batchItem, 0, len(subs))
	texts := make(map[string]string)
	for _, s := range subs {
		items = append(items, batchItem{
			PageID: s.PageID,
			Request: intake.Request{
				MessageID: s.MessageID,
				From:      s.From,
				Subject:   s.Subject,
				Body:      s.Body,
				Fields:    s.Fields,
			},
		})
		if len(s.Fields) == 0 && strings.TrimSpace(s.Subject+s.Body) != "" {
			texts[s.PageID] = strings.TrimSpace(s.Subject + "\n\n" + s.Body)
		}
	}
	if ex == nil || len(texts) < 2 {
		// Intake extracts single rows itself.
		return items, nil
	}

	res, err := ex.ExtractBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range items {
		id := items[i].PageID
		if f, ok := res.Fields[id]; ok {
			items[i].Request.Fields = f
		} else if ferr, ok := res.Failures[id]; ok {
			items[i].Err = ferr
		}
	}
	zap.L().Info("extracted queued submissions",
		zap.Int("extracted", len(res.Fields)),
		zap.Int("failed", len(res.Failures)),
	)
	return items, nil
}

func notionOutcome(q *notion.Queue) outcomeFunc {
	return func(ctx context.Context, item batchItem, res *intake.Result, err error) {
		status, workItem, notes := notion.StatusProcessed, "", ""
		switch {
		case errors.Is(err, intake.ErrDuplicate):
			status = notion.StatusDuplicate
		case err != nil:
			status, notes = notion.StatusFailed, err.Error()
		default:
			workItem = res.WorkItem.ID
			notes = fmt.Sprintf("%s, %s priority", res.WorkItem.Status, res.WorkItem.Priority)
		}
		if uErr := q.Complete(ctx, item.PageID, status, workItem, notes); uErr != nil {
			zap.L().Warn("failed to update notion status",
				zap.String("page_id", item.PageID),
				zap.String("status", status),
				zap.Error(uErr),
			)
		}
	}
}

// processBatch applies limit, then intakes items concurrently. Individual
// failures are logged and counted without aborting the batch.
func processBatch(ctx context.Context, items []batchItem, limit, concurrency int, run intakeFunc, done outcomeFunc) (batchStats, error) {
	var stats batchStats
	if len(items) == 0 {
		zap.L().Info("no submissions to process")
		return stats, nil
	}

	// Apply limit
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("submissions", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, duplicate, failed atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("message_id", item.Request.MessageID))

			var res *intake.Result
			err := item.Err
			if err == nil {
				res, err = run(gctx, item.Request)
			}
			switch {
			case errors.Is(err, intake.ErrDuplicate):
				duplicate.Add(1)
				log.Info("duplicate submission skipped")
			case err != nil:
				failed.Add(1)
				log.Error("intake failed", zap.Error(err))
			default:
				succeeded.Add(1)
				log.Info("submission processed",
					zap.String("work_item_id", res.WorkItem.ID),
					zap.String("status", string(res.WorkItem.Status)),
				)
			}
			if done != nil {
				done(gctx, item, res, err)
			}
			return nil // don't abort batch on individual failure
		})
	}

	_ = g.Wait()

	stats = batchStats{Succeeded: succeeded.Load(), Duplicate: duplicate.Load(), Failed: failed.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("duplicate", stats.Duplicate),
		zap.Int64("failed", stats.Failed),
	)
	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "batch interrupted")
	}
	return stats, nil
}
