package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/submission"
)

func newValidateCmd() *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "validate <csv>",
		Short: "Check a submission CSV for column, label and id problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed := make([]string, len(prediction.Labels))
			for i, l := range prediction.Labels {
				allowed[i] = string(l)
			}
			r, err := submission.NewValidator(allowed, logger).Validate(args[0], report)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d valid, %d issues\n", r.File, r.Summary.TotalRows, r.Summary.ValidRows, r.Summary.Errors)
			for _, is := range r.Issues {
				fmt.Fprintf(out, "  %-14s %s\n", is.ErrorType, is.Detail)
			}
			if !r.OK() {
				return fmt.Errorf("%s: %w", args[0], submission.ErrInvalidSubmission)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "write the JSON report here")
	return cmd
}
