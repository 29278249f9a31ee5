package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlabel",
		Short: "Food label copilot for the terminal",
		Long: `unlabel helps you decide about food: ask a question, or scan a label
with your camera or from a file, and get a plain-language verdict.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return app.setup()
		},
	}

	cmd.AddCommand(
		newChatCmd(app),
		newAskCmd(app),
		newScanCmd(app),
		newLoginCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newHistoryCmd(app),
		newSearchCmd(app),
		newProductCmd(app),
		newServeCmd(app),
	)
	return cmd
}
