package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		database string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past test runs",
		Long: `Show past test runs from the run-history database. With a run ID
argument, show that run's individual deployment attempts instead.`,
		Example: `  # List the 20 most recent runs
  imagebench history --database runs.db

  # Show the attempts of one run
  imagebench history --database runs.db 6f1b2c3d-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, database)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				attempts, err := store.ListAttemptsByRun(ctx, run.ID)
				if err != nil {
					return err
				}

				fmt.Printf("run %s  image=%s  status=%s  passes=%d\n", run.ID, run.Image, run.Status, run.Passes)
				for _, a := range attempts {
					fmt.Printf("  pass=%d zone=%-20s outcome=%-8s deployment=%s\n",
						a.Pass, a.Zone, a.Outcome, a.Deployment)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			for _, run := range runs {
				completed := "-"
				if run.CompletedAt != nil {
					completed = run.CompletedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%s  %-10s  passes=%d  completed=%s  %s\n",
					run.ID, run.Status, run.Passes, completed, run.Image)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "run-history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	_ = cmd.MarkFlagRequired("database")

	return cmd
}
