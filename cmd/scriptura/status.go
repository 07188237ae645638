package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <STATUS>",
	Short: "Set a work's processing status",
	Long: `Moves a work to another status. Use it to reset FAILED_CONVERSION or
FAILED_PROCESSING works to PENDING, or to promote an EM_REVISAO upload to PENDING.`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}
	status, err := catalog.ParseStatus(args[1])
	if err != nil {
		return err
	}

	store, closeDB, err := openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	work, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := store.UpdateStatus(cmd.Context(), id, status); err != nil {
		return err
	}
	cmd.Printf("%q: %s -> %s\n", work.Title, work.Status, status)
	return nil
}
