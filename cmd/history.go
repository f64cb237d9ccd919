package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// newHistoryCmd creates the 'history' command group for reviewing finalized
// scans.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Review finalized scans",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List finalized scans, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			list, err := appInstance.Manager().List(cmd.Context())
			if err != nil && len(list) == 0 {
				return fmt.Errorf("list scans: %w", err)
			}
			if err != nil {
				newPrinter(cmd.ErrOrStderr()).warning("history unavailable, showing this session only: %v", err)
			}
			if limit > 0 && len(list) > limit {
				list = list[:limit]
			}
			if len(list) == 0 {
				newPrinter(cmd.OutOrStdout()).info("No scans recorded yet")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "SCAN ID\tSTATUS\tSTARTED\tDURATION\tFILES\tFINDINGS\tROOT")
			for _, s := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					s.ID,
					statusColor(s.Status)(string(s.Status)),
					s.StartedAt.Local().Format(time.DateTime),
					(time.Duration(s.DurationMs) * time.Millisecond).String(),
					s.Counters.FilesExamined,
					s.ResultCount,
					s.RootPath,
				)
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write history table: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum scans to list (0 for all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "show SCAN_ID",
		Short: "Print the findings of one finalized scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := appInstance.Manager().Record(cmd.Context(), args[0])
			if errors.Is(err, scan.ErrNotFound) {
				return fmt.Errorf("scan %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("load scan record: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("encode scan record: %w", err)
				}
				return nil
			}
			out := newPrinter(cmd.OutOrStdout())
			out.info("Scan %s of %s", rec.ID, rec.Request.Path)
			_ = printRecord(out, rec, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print rule, size and sample digest for each finding")
	return cmd
}

func statusColor(s scan.Status) func(a ...any) string {
	switch s {
	case scan.StatusCompleted:
		return successColor
	case scan.StatusStopped:
		return warningColor
	case scan.StatusFailed:
		return errorColor
	default:
		return infoColor
	}
}
