package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/rpc"
	"github.com/spf13/cobra"
)

// #region summary
func newSummaryCmd(opts *options) *cobra.Command {
	var jsonOut bool
	var remote string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize recorded verdicts",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sum audit.Summary
			var err error
			if remote != "" {
				sum, err = remoteSummary(cmd.Context(), remote)
			} else {
				sum, err = localSummary(cmd.Context(), opts)
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			return printSummary(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")
	cmd.Flags().StringVar(&remote, "remote", "", "read the summary from a remote guard at this gRPC address")
	return cmd
}

func localSummary(ctx context.Context, opts *options) (audit.Summary, error) {
	cfg, err := opts.settings()
	if err != nil {
		return audit.Summary{}, err
	}
	if cfg.AuditDB == "" {
		return audit.Summary{}, usageError{errors.New("summary needs --audit-db or --remote")}
	}
	logger, err := opts.logger(cfg)
	if err != nil {
		return audit.Summary{}, err
	}
	svc, closeSvc, err := openService(cfg, logger)
	if err != nil {
		return audit.Summary{}, err
	}
	defer closeSvc()
	return svc.Summary(ctx)
}

func remoteSummary(ctx context.Context, addr string) (audit.Summary, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return audit.Summary{}, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return client.Summary(ctx)
}

// #endregion summary

// #region table
func printSummary(w io.Writer, sum audit.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "evaluations\t%d\n", sum.Count)
	fmt.Fprintf(tw, "rejected\t%d\n", sum.Rejected)
	fmt.Fprintf(tw, "avg mood\t%.4f\n", sum.AvgMood)
	if len(sum.GoalCounts) > 0 {
		fmt.Fprintln(tw, "\nGOAL\tCOUNT")
		for _, k := range sortedKeys(sum.GoalCounts) {
			label := k
			if label == "" {
				label = "(none)"
			}
			fmt.Fprintf(tw, "%s\t%d\n", label, sum.GoalCounts[k])
		}
	}
	if len(sum.ConstraintCounts) > 0 {
		fmt.Fprintln(tw, "\nCONSTRAINT\tFIRED")
		for _, k := range sortedKeys(sum.ConstraintCounts) {
			fmt.Fprintf(tw, "%s\t%d\n", k, sum.ConstraintCounts[k])
		}
	}
	return tw.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion table
