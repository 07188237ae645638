package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file.yaml]",
	Short: "Create the works table and insert the starter catalog",
	Long: `Creates the works table when it is missing and inserts every work of the
seed file whose text path is not catalogued yet. Defaults to configs/works.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	path := "configs/works.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	works, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}

	store, closeDB, err := openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	added, err := store.Seed(cmd.Context(), works)
	if err != nil {
		return err
	}
	cmd.Printf("Seeded %d of %d works from %s.\n", added, len(works), path)
	return nil
}
