package cli

import (
	"github.com/spf13/cobra"

	"github.com/vbonduro/unlabel/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose a conversation to a local browser",
		Long: `Starts a local HTTP bridge. The conversation is available as JSON at
/transcript and as a live stream at /ws; questions are posted to /messages and
label files to /captures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = app.cfg.ListenAddr
			}
			conv := app.newConversation()
			defer closeConversation(app, conv)

			server := web.NewServer(conv, app.newCamera(), app.logger)
			app.println("Listening on http://" + addr)
			return server.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (defaults to LISTEN_ADDR)")
	return cmd
}
