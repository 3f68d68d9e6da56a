package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/agent462/drove/internal/history"
)

var (
	historyLimit int
	historyRunID string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List runs recorded with --history, newest first. With --run, show
the per-command results of one run.`,
	RunE: historyE,
}

func historyE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, historyPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	if historyRunID != "" {
		entries, err := store.Results(ctx, historyRunID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no results recorded for run %s", historyRunID)
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "show the results of one run")
	rootCmd.AddCommand(historyCmd)
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Group,
			strconv.Itoa(r.Hosts),
			strconv.Itoa(r.Commands),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(w, historyTable("Run", "Started", "Group", "Hosts", "Commands", "OK", "Failed", "Took").Rows(rows...))
}

func printEntries(w io.Writer, entries []history.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Host,
			e.Command,
			e.Kind,
			strconv.Itoa(e.ExitCode),
			strconv.Itoa(e.Attempts),
			e.ErrorText,
		})
	}
	fmt.Fprintln(w, historyTable("Host", "Command", "Kind", "Exit", "Attempts", "Error").Rows(rows...))
}

func historyTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
}
