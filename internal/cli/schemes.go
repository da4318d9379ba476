package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addSchemeCommands adds scheme-master management.
func addSchemeCommands(rootCmd *cobra.Command, newApp func() (*App, error)) {
	cmd := &cobra.Command{
		Use:   "schemes",
		Short: "Search and sync the scheme master",
	}

	var advisor string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Download and apply the exchange scheme master",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Masters.SyncSchemeMaster(cmd.Context(), advisor)
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d schemes\n", n)
			return nil
		},
	}
	syncCmd.Flags().StringVar(&advisor, "advisor", "", "advisor whose credentials authenticate the download")
	syncCmd.MarkFlagRequired("advisor")
	cmd.AddCommand(syncCmd)

	var page, limit int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search schemes by code or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			schemes, total, err := app.Masters.SearchSchemes(cmd.Context(), args[0], page, limit)
			if err != nil {
				return err
			}

			for _, s := range schemes {
				flags := ""
				if s.PurchaseAllowed {
					flags += "P"
				}
				if s.RedemptionAllowed {
					flags += "R"
				}
				if s.SIPAllowed {
					flags += "S"
				}
				fmt.Printf("%-16s %-60s %s\n", s.SchemeCode, s.SchemeName, flags)
			}
			fmt.Printf("%d of %d schemes\n", len(schemes), total)
			return nil
		},
	}
	searchCmd.Flags().IntVar(&page, "page", 1, "result page")
	searchCmd.Flags().IntVar(&limit, "limit", 20, "results per page")
	cmd.AddCommand(searchCmd)

	rootCmd.AddCommand(cmd)
}
