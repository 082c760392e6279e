package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Rbruno/PokeCapture/internal/models"
	"github.com/Rbruno/PokeCapture/internal/services"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		pages    int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Look up cards for a Pokémon from the command line",
		Long: `Runs the same lookup the web interface uses: the first page is retried when
it comes back empty or times out, and further pages are loaded with "load more".`,
		Example: `  pokecapture search pikachu
  pokecapture search charizard --pages 3 --provider pokemontcg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Providers
			if provider != "" {
				cfg.CardProvider = models.ProviderKind(strings.ToLower(provider))
			}

			factory, err := services.NewProviderFactory(cfg, a.logger)
			if err != nil {
				return err
			}
			lookups := services.NewLookupManager(factory, a.cfg.Lookup, a.logger)
			defer lookups.Shutdown()

			name := strings.ToLower(strings.TrimSpace(args[0]))
			session := lookups.Open(cmd.Context(), models.CatalogEntry{ID: name, Name: name})
			for i := 1; i < pages; i++ {
				if !session.LoadMore(cmd.Context()) {
					break
				}
			}

			snap := session.Snapshot()
			out := cmd.OutOrStdout()
			switch {
			case snap.NoResults:
				fmt.Fprintf(out, "No cards found for %q\n", name)
				return nil
			case snap.Error != nil:
				return fmt.Errorf("%s %s", snap.Error.Message, snap.Error.Guidance)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSET\tIMAGE")
			for _, card := range snap.Cards {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", card.ID, card.Name, card.SetName, card.ImageURL)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%d of %d cards (page %d, more: %t)\n",
				len(snap.Cards), snap.Pagination.TotalCount, snap.Pagination.CurrentPage, snap.Pagination.HasMore)
			if snap.LoadMoreError != nil {
				fmt.Fprintf(out, "Loading more failed: %s\n", snap.LoadMoreError.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	cmd.Flags().StringVar(&provider, "provider", "", "Card provider to use: pokemontcg or tcgdex (overrides config)")

	return cmd
}
