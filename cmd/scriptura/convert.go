package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert every PDF in the PDF directory into the corpus directory",
	Long: `Runs the configured PDF extractor over each PDF of ingestion.pdfDir and
writes <name>.txt into ingestion.corpusDir. Texts that already exist are skipped.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, _ []string) error {
	report, err := convert.ConvertDir(cmd.Context(), convert.NewPDFToText(cfg.Converter), cfg.Ingestion.PDFDir, cfg.Ingestion.CorpusDir)
	if err != nil {
		return err
	}
	cmd.Printf("PDFs found: %d, converted: %d, already converted: %d, failed: %d\n",
		report.Found, report.Converted, report.Skipped, len(report.Failed))

	if len(report.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("  %s: %v\n", name, report.Failed[name])
	}
	return fmt.Errorf("%d conversions failed", len(report.Failed))
}
