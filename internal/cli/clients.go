package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"starmf-gateway/internal/services"
)

// addClientCommands adds UCC client-registration management.
func addClientCommands(rootCmd *cobra.Command, newApp func() (*App, error)) {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Register clients with the exchange",
	}

	var input services.RegisterClientInput
	registerCmd := &cobra.Command{
		Use:   "register <client-id>",
		Short: "Submit a client's UCC registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			input.ClientID = args[0]
			reg, err := app.Registrations.RegisterClient(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Printf("Registration %s (client code %s)\n", reg.Status, reg.ClientCode)
			if reg.ResponseMessage != nil {
				fmt.Println(*reg.ResponseMessage)
			}
			return nil
		},
	}
	registerCmd.Flags().StringVar(&input.AdvisorID, "advisor", "", "advisor the client belongs to")
	registerCmd.Flags().StringVar(&input.PAN, "pan", "", "client PAN (doubles as the exchange client code)")
	registerCmd.Flags().StringVar(&input.FirstName, "first-name", "", "client first name")
	registerCmd.Flags().StringVar(&input.LastName, "last-name", "", "client last name")
	registerCmd.Flags().StringVar(&input.DateOfBirth, "dob", "", "date of birth, DD/MM/YYYY")
	registerCmd.Flags().StringVar(&input.Email, "email", "", "client email")
	registerCmd.Flags().StringVar(&input.Mobile, "mobile", "", "client mobile number")
	registerCmd.Flags().StringVar(&input.TaxStatus, "tax-status", "", "exchange tax status code")
	registerCmd.Flags().StringVar(&input.HoldingNature, "holding", "", "holding nature (default SI)")
	registerCmd.Flags().StringVar(&input.AccountNumber, "account", "", "primary bank account number")
	registerCmd.Flags().StringVar(&input.IFSC, "ifsc", "", "primary bank IFSC")
	registerCmd.Flags().BoolVar(&input.Modification, "modify", false, "re-submit an existing registration with changed details")
	registerCmd.MarkFlagRequired("advisor")
	registerCmd.MarkFlagRequired("pan")
	registerCmd.MarkFlagRequired("dob")
	registerCmd.MarkFlagRequired("email")
	registerCmd.MarkFlagRequired("tax-status")
	cmd.AddCommand(registerCmd)

	statusCmd := &cobra.Command{
		Use:   "status <client-id>",
		Short: "Show a client's registration state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			reg, err := app.Registrations.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Client code: %s\nStatus:      %s\nFATCA:       %s\n",
				reg.ClientCode, reg.Status, reg.FATCAStatus)
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	var fatca services.FATCAInput
	fatcaCmd := &cobra.Command{
		Use:   "fatca <client-id>",
		Short: "Upload a client's FATCA declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			fatca.ClientID = args[0]
			if err := app.Registrations.UploadFATCA(cmd.Context(), fatca); err != nil {
				return err
			}
			fmt.Println("FATCA uploaded")
			return nil
		},
	}
	fatcaCmd.Flags().StringVar(&fatca.AdvisorID, "advisor", "", "advisor the client belongs to")
	fatcaCmd.Flags().StringVar(&fatca.TaxStatus, "tax-status", "", "FATCA tax status (default 01)")
	fatcaCmd.Flags().StringVar(&fatca.IncomeSlab, "income-slab", "", "income slab code (default 31)")
	fatcaCmd.Flags().StringVar(&fatca.PEPStatus, "pep", "", "politically-exposed-person flag (default N)")
	fatcaCmd.MarkFlagRequired("advisor")
	cmd.AddCommand(fatcaCmd)

	rootCmd.AddCommand(cmd)
}
