package main

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uw-workbench/internal/intake"
	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/risk"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/workbook"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Validate, score and recommend one submission",
	Long: `Evaluate a submission field map without persisting anything.

The file holds a JSON object of submission fields. Use "-" to read stdin.

Examples:
  # Score a submission
  score --file fields.json

  # Include two prior claims and one incident
  score --file fields.json --history 2,1

  # Also write an XLSX report
  score --file fields.json --out report.xlsx`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("file", "", "JSON file of submission fields (- for stdin)")
	f.String("history", "", "prior claims and incidents as claims,incidents")
	f.String("out", "", "write an XLSX report to this path")
	_ = scoreCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate("score"); err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	historyFlag, _ := cmd.Flags().GetString("history")
	out, _ := cmd.Flags().GetString("out")

	fields, err := readFields(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}
	hist, err := parseHistory(historyFlag)
	if err != nil {
		return err
	}

	tables, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return err
	}
	scorer, err := risk.New(cfg.Rules.Scorer)
	if err != nil {
		return err
	}

	// Evaluate never touches the store.
	svc := intake.New(nil, tables,
		intake.WithScorer(scorer),
		intake.WithNormalizedPriority(cfg.Rules.NormalizePriorityScore),
	)
	ev := svc.Evaluate(fields, hist)

	zap.L().Info("submission scored",
		zap.String("validation", string(ev.Validation.Status)),
		zap.Float64("overall_score", ev.Assessment.OverallScore),
		zap.String("action", string(ev.Recommendation.Action)),
	)

	if out != "" {
		if err := workbook.WriteReport(out, reportFor(fields, ev)); err != nil {
			return err
		}
		zap.L().Info("report written", zap.String("path", out))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ev)
}

func readFields(stdin io.Reader, path string) (model.Fields, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var fields model.Fields
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return nil, eris.Wrap(err, "decode submission fields")
	}
	if fields == nil {
		return nil, eris.New("submission fields must be a JSON object")
	}
	return fields, nil
}

// parseHistory reads "claims,incidents". An empty value means no history.
func parseHistory(s string) (*model.HistoricalData, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, eris.Errorf("history must be claims,incidents: %q", s)
	}
	var counts [2]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, eris.Errorf("history counts must be non-negative integers: %q", s)
		}
		counts[i] = n
	}
	return &model.HistoricalData{ClaimsCount: counts[0], IncidentCount: counts[1]}, nil
}

func reportFor(fields model.Fields, ev intake.Evaluation) workbook.Report {
	return workbook.Report{
		Fields:         fields,
		Validation:     ev.Validation,
		Assessment:     ev.Assessment,
		Priority:       ev.Priority,
		Recommendation: ev.Recommendation,
		Tier:           ev.Routing.Tier,
		Underwriters:   ev.Routing.Pool,
	}
}
