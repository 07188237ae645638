package main

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

var errOutOfSync = errors.New("indexes out of sync with catalog")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the indexes and the catalog agree on indexed works",
	Long: `Compares the work ids of the catalog with the work ids recorded in each
flavor's manifest. Exits non-zero when a strict flavor misses a PROCESSED work
or any flavor holds ids the catalog does not know.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	store, closeDB, err := openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	var indexes []audit.Index
	for _, flavor := range []string{indexstore.Granular, indexstore.Context} {
		s, err := indexstore.Open(cfg.Index.DataDir, flavor, indexstore.ReadOnly())
		if err != nil {
			return err
		}
		indexes = append(indexes, s)
	}

	report, err := audit.Run(cmd.Context(), store, indexes)
	if err != nil {
		return err
	}

	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow, color.Bold).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()

	if report.CatalogWorks == 0 {
		cmd.Printf("%s catalog is empty, run 'scriptura seed' first\n", bad("[CATALOG]"))
	} else {
		cmd.Printf("%s %d works, %d processed\n", ok("[CATALOG]"), report.CatalogWorks, report.Processed)
	}

	for _, f := range report.Flavors {
		label := "[" + f.Flavor + "]"
		switch {
		case !f.Present:
			cmd.Printf("%s index not built, run 'scriptura build %s'\n", bad(label), f.Flavor)
			continue
		case f.InSync():
			cmd.Printf("%s in sync, %d works indexed\n", ok(label), f.Indexed)
		default:
			cmd.Printf("%s out of sync, %d works indexed\n", bad(label), f.Indexed)
		}
		if len(f.MissingInIndex) > 0 {
			mark := bad
			if !f.Strict {
				mark = warn
			}
			cmd.Printf("  %s processed works without rows: %v\n", mark("-"), f.MissingInIndex)
		}
		if len(f.MissingInCatalog) > 0 {
			cmd.Printf("  %s indexed ids unknown to the catalog: %v\n", bad("-"), f.MissingInCatalog)
		}
	}

	if !report.InSync() {
		return errOutOfSync
	}
	return nil
}
