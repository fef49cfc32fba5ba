package main

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/guard"
	"github.com/danielpatrickdp/adaptive-state/policy-guard/internal/replay"
	"github.com/spf13/cobra"
)

// #region replay
func newReplayCmd(_ *options) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a regression fixture through the guard",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			results := replay.Run(f, guard.New())

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Passed {
					if verbose {
						fmt.Fprintf(out, "PASS  %s\n", r.Name)
					}
					continue
				}
				fmt.Fprintf(out, "FAIL  %s\n%s\n", r.Name, r.Diff)
			}
			s := replay.Summarize(results)
			fmt.Fprintf(out, "%d cases: %d passed, %d failed\n", s.Total, s.Passed, s.Failed)
			if s.Failed > 0 {
				return errReplayFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list passing cases too")
	return cmd
}

// #endregion replay
