package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
	"github.com/samargunners/par-delta-dashboard/internal/model"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
)

var (
	documentsTable string
	showChunks     bool
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Print the documents built from the business tables",
	Long: `Fetch the configured tables and print the documents the index is built from.
No embedding provider or language model is called.

Examples:
  ragctl documents --table waste_daily
  ragctl documents --chunks -o json`,
	RunE: runDocuments,
}

func init() {
	documentsCmd.Flags().StringVar(&documentsTable, "table", "", "Only print documents from this table")
	documentsCmd.Flags().BoolVar(&showChunks, "chunks", false, "Print chunks instead of documents")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, closeDB, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	fetcher, builder := bootstrap.NewDocumentSource(cfg, db, newLogger(cfg))
	set, err := fetcher.FetchAll(ctx)
	if err != nil {
		return err
	}
	docs := filterDocuments(builder.Build(set), documentsTable)

	out := cmd.OutOrStdout()
	for _, w := range set.Warnings() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}

	if showChunks {
		splitter, err := rag.NewSplitter(rag.SplitterConfig{
			Size:      cfg.RAG.ChunkSize,
			Overlap:   cfg.RAG.ChunkOverlap,
			Tolerance: cfg.RAG.BoundaryTolerance,
		})
		if err != nil {
			return err
		}
		chunks := splitter.SplitAll(docs)
		if outputFormat == "json" {
			return printJSON(out, chunks)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DOCUMENT\tINDEX\tSTART\tEND\tTEXT")
		for _, c := range chunks {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", c.DocumentID, c.Index, c.Start, c.End, c.Text)
		}
		return tw.Flush()
	}

	if outputFormat == "json" {
		return printJSON(out, docs)
	}
	for _, d := range docs {
		fmt.Fprintln(out, d.Text)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d documents from %d records\n", len(docs), set.RecordCount())
	return nil
}

func filterDocuments(docs []model.Document, table string) []model.Document {
	if table == "" {
		return docs
	}
	out := docs[:0]
	for _, d := range docs {
		if d.Metadata[model.MetaTable] == table {
			out = append(out, d)
		}
	}
	return out
}
