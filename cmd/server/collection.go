package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rbruno/PokeCapture/internal/services"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "export <file>",
		Short:   "Write the saved collection to a save file",
		Example: `  pokecapture export backup.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := a.openCollection(cmd.Context())
			if err != nil {
				return err
			}

			sf := collection.Export()
			if err := services.NewFileStore(args[0]).Save(cmd.Context(), sf); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records (%d captured) to %s\n",
				len(sf.Collection), sf.TotalCaptured, args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the saved collection with a save file",
		Long: `Reads a save file written by export or by the web interface and replaces the
stored collection with it. Older saves without the version envelope are accepted.`,
		Example: `  pokecapture import pokeCapture_save_2024-05-01.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			collection, err := a.openCollection(cmd.Context())
			if err != nil {
				return err
			}

			n, err := collection.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			// Import only logs a failed save
			if err := collection.Save(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", n, args[0])
			return nil
		},
	}
}
