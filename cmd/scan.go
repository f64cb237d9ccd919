package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

type scanOptions struct {
	path    string
	threads int
	depth   int
	format  string
	verbose bool
}

// newScanCmd creates the 'scan' subcommand, which runs one scan in the
// foreground through the scan manager and prints what it found.
func newScanCmd() *cobra.Command {
	opts := scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a directory or mounted volume and print wallet candidates",
		Long: `Runs a single scan in-process and prints every detection grouped by
confidence band, followed by the report location. Ctrl-C stops the scan
cooperatively; the partial record is still finalized and printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "directory or mount point to scan")
	cmd.Flags().IntVarP(&opts.threads, "threads", "t", 0, "worker count (0 uses scan.default_threads)")
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", scan.Unbounded, "maximum directory depth, -1 for unlimited (default scan.default_max_depth)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "report format: html, json or markdown (default reports.format)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print rule, size and sample digest for each finding")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func runScan(cmd *cobra.Command, opts scanOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	mgr := appInstance.Manager()
	out := newPrinter(cmd.OutOrStdout())

	req := scan.Request{
		Path:         opts.path,
		Threads:      opts.threads,
		MaxDepth:     appInstance.Config().Scan.DefaultMaxDepth,
		Verbose:      opts.verbose,
		ReportFormat: opts.format,
	}
	if cmd.Flags().Changed("depth") {
		req.MaxDepth = opts.depth
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := mgr.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	if snap := mgr.Status(); snap.Record != nil {
		out.info("Scanning %s with %d threads (scan %s)", snap.Record.Request.Path, snap.Record.Request.Threads, id)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if ack := mgr.Stop(); ack.Acknowledged {
				out.warning("Interrupted, stopping scan %s", ack.ScanID)
			}
		case <-done:
		}
	}()
	waitErr := mgr.Wait(context.WithoutCancel(ctx))
	close(done)
	if waitErr != nil {
		return fmt.Errorf("wait for scan: %w", waitErr)
	}

	rec, err := mgr.Record(context.WithoutCancel(ctx), id)
	if err != nil {
		return fmt.Errorf("load scan record: %w", err)
	}
	return printRecord(out, rec, opts.verbose)
}

// printRecord prints a finalized record and returns an error for failed scans
// so the process exits non-zero.
func printRecord(out *printer, rec scan.Record, verbose bool) error {
	out.findings(rec.Results, verbose)
	out.counters(rec)
	switch rec.Status {
	case scan.StatusCompleted:
		out.success("Scan %s completed with %d candidates", rec.ID, len(rec.Results))
	case scan.StatusStopped:
		out.warning("Scan %s stopped early, results are partial", rec.ID)
	case scan.StatusFailed:
		out.fail("Scan %s failed: %s", rec.ID, rec.FailureReason)
	default:
		out.info("Scan %s is %s", rec.ID, rec.Status)
	}
	if rec.ReportURI != "" {
		out.info("Report: %s", rec.ReportURI)
	}
	if rec.Status == scan.StatusFailed {
		return fmt.Errorf("scan %s failed: %s", rec.ID, rec.FailureReason)
	}
	return nil
}
