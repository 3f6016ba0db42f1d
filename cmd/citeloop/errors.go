package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/citeloop/internal/logging"
)

func newErrorsCmd() *cobra.Command {
	var errorsDir, typeName string
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Count logged errors by type, or list one type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errorsDir == "" {
				errorsDir = cfg.Paths.ErrorsDir
			}
			storage, err := logging.NewStorage(errorsDir)
			if err != nil {
				return err
			}
			q := logging.NewQuery(storage)
			w := cmd.OutOrStdout()

			if typeName == "" {
				counts, err := q.CountByType()
				if err != nil {
					return err
				}
				for _, t := range logging.ErrorTypes {
					fmt.Fprintf(w, "%-22s %d\n", t, counts[t])
				}
				return nil
			}

			t, err := logging.ParseErrorType(typeName)
			if err != nil {
				return err
			}
			recs, err := q.FilterByCategory(t)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Fprintf(w, "%s  %s  %-24s %s\n", r.Timestamp, r.ContextID, r.SourceModule, r.Reason)
			}
			fmt.Fprintf(w, "%d %s records\n", len(recs), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&errorsDir, "errors-dir", "", "error log directory (default from config)")
	cmd.Flags().StringVar(&typeName, "type", "", "list records of one error type")
	return cmd
}
