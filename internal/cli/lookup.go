package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vbonduro/unlabel/internal/backend"
	"github.com/vbonduro/unlabel/internal/render"
)

func newHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your past analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.requireUser(cmd.Context()); err != nil {
				return err
			}
			entries, err := app.client.History(cmd.Context())
			if err != nil {
				if backend.IsUnauthorized(err) {
					return errSignInRequired
				}
				return err
			}
			app.println(render.History(entries))
			return nil
		},
	}
}

func newSearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Short:   "Search the food database",
		Example: `  unlabel search oat milk`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := app.client.SearchFood(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			app.println(render.Products(products))
			return nil
		},
	}
}

func newProductCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "product <id>",
		Short: "Show a product's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := app.client.Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.println(render.Product(product))
			return nil
		},
	}
}
