// Command reconscan runs a single-target reconnaissance scan and
// prints its run report as JSON. Adapted from
// secinto-probeHTTP/cmd/probehttp/main.go's signal-handling and
// structured-logging pattern, narrowed from a bulk URL-list prober to
// a single-shot scan driven by internal/orchestrator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reconscan/reconscan/internal/config"
	"github.com/reconscan/reconscan/internal/model"
	"github.com/reconscan/reconscan/internal/normalize"
	"github.com/reconscan/reconscan/internal/orchestrator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconscan <target-url>",
		Short: "Recon scan a single web target and print its run report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	cmd.Flags().Int("max-http-requests-per-scan", 0, "override MAX_HTTP_REQUESTS_PER_SCAN")
	cmd.Flags().Int("max-concurrent-requests", 0, "override MAX_CONCURRENT_REQUESTS")
	cmd.Flags().String("data-dir", "", "directory holding cms_rules.json / wp_cves.json / probes.json")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	cmd.Flags().Bool("silent", false, "suppress non-error logging")
	cmd.Flags().Bool("pretty", false, "pretty-print the JSON run report")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cfg.Logger.Info("shutting down gracefully...")
		cancel()
	}()

	scanner := orchestrator.New(cfg)
	defer scanner.Close()

	target := args[0]
	cfg.Logger.Info("starting scan", "target", target)

	pretty, _ := cmd.Flags().GetBool("pretty")

	runReport, scanErr := scanner.Scan(ctx, target)
	if scanErr != nil {
		cfg.Logger.Error("scan failed", "target", target, "error", scanErr)
		// Normalization failures are the only fatal-to-scan path
		// (spec.md §7): emit the short failure object instead of a
		// run report.
		if normErr, ok := scanErr.(*normalize.Error); ok {
			failed := model.FailedScan{Status: "failed", Error: normErr.Error()}
			if err := writeReport(cmd, failed, pretty); err != nil {
				return err
			}
			return scanErr
		}
		return scanErr
	}

	return writeReport(cmd, runReport, pretty)
}

func writeReport(cmd *cobra.Command, report interface{}, pretty bool) error {
	out := cmd.OutOrStdout()
	var b []byte
	var err error
	if pretty || term.IsTerminal(int(os.Stdout.Fd())) {
		b, err = json.MarshalIndent(report, "", "  ")
	} else {
		b, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
