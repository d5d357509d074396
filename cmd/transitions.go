package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/rules"
	"github.com/sells-group/uw-workbench/internal/workflow"
)

var transitionsJSON bool

var transitionsCmd = &cobra.Command{
	Use:   "transitions [status]",
	Short: "Print the work item transition graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}
		m := workflow.New(tables)

		statuses := model.Statuses
		if len(args) == 1 {
			s := model.Status(strings.ToLower(strings.TrimSpace(args[0])))
			if !slices.Contains(model.Statuses, s) {
				return eris.Errorf("unknown status %q", args[0])
			}
			statuses = []model.Status{s}
		}
		return printTransitions(cmd.OutOrStdout(), m, statuses, transitionsJSON)
	},
}

func init() {
	transitionsCmd.Flags().BoolVar(&transitionsJSON, "json", false, "print the graph as JSON")
	rootCmd.AddCommand(transitionsCmd)
}

func printTransitions(w io.Writer, m *workflow.Machine, statuses []model.Status, asJSON bool) error {
	if asJSON {
		graph := make(map[model.Status][]model.Status, len(statuses))
		for _, s := range statuses {
			graph[s] = m.AllowedTransitions(s)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)
	}

	for _, s := range statuses {
		next := m.AllowedTransitions(s)
		if len(next) == 0 {
			if _, err := fmt.Fprintf(w, "%-14s (terminal)\n", s); err != nil {
				return err
			}
			continue
		}
		names := make([]string, len(next))
		for i, n := range next {
			names[i] = string(n)
		}
		if _, err := fmt.Fprintf(w, "%-14s -> %s\n", s, strings.Join(names, ", ")); err != nil {
			return err
		}
	}
	return nil
}
