package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/lectern/internal/textutil"
	"github.com/xhad/lectern/pkg/rag"
	"github.com/xhad/lectern/pkg/source"
)

var (
	ingestMax      int
	ingestPDFPages int
)

func init() {
	ingestCmd.Flags().IntVarP(&ingestMax, "max", "n", rag.DefaultBatchResults, "Maximum results per topic")
	ingestPDFCmd.Flags().IntVar(&ingestPDFPages, "pages", 0, "Only read the first N pages (0 reads all)")
	rootCmd.AddCommand(ingestCmd, ingestPDFCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [topic...]",
	Short: "Fetch and index papers for one or more topics",
	Long: `Fetch papers for each topic from the configured source and add them
to the index. With no topics, source.topics from the config is used, and
failing that a default list covering the major loci of
systematic theology is ingested.

Examples:
  lectern ingest
  lectern ingest "Karl Barth doctrine of election" -n 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		topics := ingestTopics(args, reg.Config().Source.Topics)

		pipeline, err := reg.Pipeline(cmd.Context())
		if err != nil {
			return err
		}

		color.Blue("Ingesting %d topics (max %d results each)\n", len(topics), ingestMax)
		bar := getProgressBar(len(topics), "Ingesting")
		report, err := pipeline.IngestBatch(cmd.Context(), topics, ingestMax, func(r rag.QueryReport) {
			bar.Describe(color.BlueString("%-30s", textutil.Truncate(r.Query, 30)))
			bar.Add(1)
		})
		bar.Finish()
		fmt.Println()

		for _, r := range report.PerQuery {
			if r.Error != "" {
				color.Red("  ✗ %s: %s", r.Query, r.Error)
			} else {
				color.Green("  ✓ %s: %d", r.Query, r.Ingested)
			}
		}
		if err != nil {
			return err
		}

		count, countErr := pipeline.Count(cmd.Context())
		color.Cyan("\nIngested %d records, %d topics failed.", report.Total, len(report.Failed))
		if countErr == nil {
			color.Cyan("Index now holds %d records.", count)
		}
		return nil
	},
}

var ingestPDFCmd = &cobra.Command{
	Use:   "ingest-pdf <file...>",
	Short: "Index local PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		pipeline, err := reg.Pipeline(cmd.Context())
		if err != nil {
			return err
		}

		failed := 0
		for _, path := range args {
			record, err := pipeline.IngestPDF(cmd.Context(), path, source.PDFOptions{MaxPages: ingestPDFPages})
			if err != nil {
				color.Red("  ✗ %s: %v", path, err)
				failed++
				continue
			}
			color.Green("  ✓ %s (%s)", record.Title, record.ID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

// ingestTopics prefers explicit arguments, then configured topics, then
// the built-in list.
func ingestTopics(args, configured []string) []string {
	if len(args) > 0 {
		return args
	}
	if len(configured) > 0 {
		return configured
	}
	return rag.DefaultTopics
}
