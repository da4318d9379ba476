package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// addJobsCommands adds manual reconciliation-job controls.
func addJobsCommands(rootCmd *cobra.Command, newApp func() (*App, error)) {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger reconciliation jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			names := app.Scheduler.Names()
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Scheduler.Trigger(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Job %s completed\n", args[0])
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}
