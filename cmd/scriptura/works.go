package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
)

var (
	worksStatus   string
	worksAuthor   string
	worksGenre    string
	worksMovement string
	worksLimit    int
	worksJSON     bool
)

var worksCmd = &cobra.Command{
	Use:   "works",
	Short: "List catalogued works",
	Args:  cobra.NoArgs,
	RunE:  runWorks,
}

func init() {
	worksCmd.Flags().StringVar(&worksStatus, "status", "", "only works with this status")
	worksCmd.Flags().StringVar(&worksAuthor, "author", "", "only works whose author contains this text")
	worksCmd.Flags().StringVar(&worksGenre, "genre", "", "only works of this genre")
	worksCmd.Flags().StringVar(&worksMovement, "movement", "", "only works of this literary movement")
	worksCmd.Flags().IntVarP(&worksLimit, "limit", "n", 0, "maximum number of works")
	worksCmd.Flags().BoolVar(&worksJSON, "json", false, "output works as JSON")
	rootCmd.AddCommand(worksCmd)
}

func runWorks(cmd *cobra.Command, _ []string) error {
	f := catalog.Filter{
		Author:   worksAuthor,
		Genre:    worksGenre,
		Movement: worksMovement,
		Limit:    worksLimit,
	}
	if worksStatus != "" {
		st, err := catalog.ParseStatus(strings.ToUpper(worksStatus))
		if err != nil {
			return err
		}
		f.Status = st
	}

	store, closeDB, err := openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	works, err := store.List(cmd.Context(), f)
	if err != nil {
		return err
	}

	if worksJSON {
		data, err := json.MarshalIndent(works, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal works: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(works) == 0 {
		cmd.Println("No works found.")
		return nil
	}
	for _, w := range works {
		year := "----"
		if w.Year != nil {
			year = fmt.Sprintf("%d", *w.Year)
		}
		cmd.Printf("  [%d] %s (%s) - %s  %s\n", w.ID, w.Title, year, w.Author, w.Status)
	}
	cmd.Printf("%d works\n", len(works))
	return nil
}
