package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"starmf-gateway/internal/services"
)

// addCredentialCommands adds per-advisor exchange-credential management.
func addCredentialCommands(rootCmd *cobra.Command, newApp func() (*App, error)) {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-advisor exchange credentials",
	}

	var input services.SetCredentialInput
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store an advisor's exchange credentials (encrypted at rest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Credentials.Set(cmd.Context(), input); err != nil {
				return err
			}
			fmt.Printf("Credentials stored for advisor %s\n", input.AdvisorID)
			return nil
		},
	}
	setCmd.Flags().StringVar(&input.AdvisorID, "advisor", "", "advisor ID")
	setCmd.Flags().StringVar(&input.MemberCode, "member", "", "exchange member code")
	setCmd.Flags().StringVar(&input.LoginID, "login", "", "exchange login ID")
	setCmd.Flags().StringVar(&input.Password, "password", "", "exchange password")
	setCmd.Flags().StringVar(&input.PassKey, "passkey", "", "exchange passkey")
	setCmd.Flags().StringVar(&input.ARN, "arn", "", "AMFI registration number")
	setCmd.Flags().StringVar(&input.EUIN, "euin", "", "employee unique identification number")
	setCmd.MarkFlagRequired("advisor")
	setCmd.MarkFlagRequired("member")
	setCmd.MarkFlagRequired("login")
	setCmd.MarkFlagRequired("password")
	setCmd.MarkFlagRequired("passkey")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status <advisor>",
		Short: "Show an advisor's credential state (secrets masked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Credentials.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Advisor:     %s\n", status.AdvisorID)
			fmt.Printf("Member code: %s\n", status.MemberCode)
			fmt.Printf("Login:       %s\n", status.LoginID)
			fmt.Printf("ARN:         %s\n", status.ARN)
			fmt.Printf("Active:      %t\n", status.Active)
			if status.LastTestedAt != nil {
				fmt.Printf("Last tested: %s (%s)\n", status.LastTestedAt.Format("2006-01-02 15:04:05"), status.TestStatus)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test <advisor>",
		Short: "Verify stored credentials with a real exchange login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Credentials.Test(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("credential test failed: %w", err)
			}
			fmt.Println("Credentials OK")
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}
