package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"starmf-gateway/internal/services"
)

// addUploadCommand adds the client-document upload command.
func addUploadCommand(rootCmd *cobra.Command, newApp func() (*App, error)) {
	var advisor, client, flag string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a client document to the exchange",
		Long:  "Uploads an account-opening form (06), FATCA declaration (08) or cancelled cheque (10) for a client.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			err = app.Uploads.Upload(cmd.Context(), services.UploadInput{
				AdvisorID: advisor,
				ClientID:  client,
				Flag:      services.UploadFlag(flag),
				FileName:  filepath.Base(args[0]),
				Content:   content,
			})
			if err != nil {
				return err
			}
			fmt.Println("Uploaded")
			return nil
		},
	}

	cmd.Flags().StringVar(&advisor, "advisor", "", "advisor whose credentials authenticate the upload")
	cmd.Flags().StringVar(&client, "client", "", "client the document belongs to")
	cmd.Flags().StringVar(&flag, "flag", "", "document flag: 06 (AOF), 08 (FATCA), 10 (cheque)")
	cmd.MarkFlagRequired("advisor")
	cmd.MarkFlagRequired("client")
	cmd.MarkFlagRequired("flag")

	rootCmd.AddCommand(cmd)
}
