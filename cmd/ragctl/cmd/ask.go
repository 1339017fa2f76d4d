package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
	"github.com/samargunners/par-delta-dashboard/internal/model"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the business tables",
	Long: `Build the index from the configured tables and answer one question.

Examples:
  ragctl ask "Which store had the highest waste on 2024-01-05?"
  ragctl ask --sources -o json "labor cost for store 357993"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <question>",
	Short: "Show the chunks that would ground an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved chunks")
	rootCmd.AddCommand(askCmd, retrieveCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	pipeline, err := bootstrap.NewPipeline(cfg, db, newLogger(cfg))
	if err != nil {
		return err
	}

	answer, err := pipeline.Ask(ctx, strings.Join(args, " "))
	if answer == nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !showSources {
		answer.Sources = nil
	}
	if outputFormat == "json" {
		if perr := printJSON(out, answer); perr != nil {
			return perr
		}
		return err
	}
	writeAnswer(out, answer)
	return err
}

func runRetrieve(cmd *cobra.Command, args []string) error {
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

	pipeline, err := bootstrap.NewPipeline(cfg, db, newLogger(cfg))
	if err != nil {
		return err
	}
	chunks, _, err := pipeline.Retrieve(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, chunks)
	}
	if len(chunks) == 0 {
		fmt.Fprintln(out, "no chunks above the similarity threshold")
		return nil
	}
	writeSources(out, chunks)
	return nil
}

func writeAnswer(w io.Writer, a *model.Answer) {
	fmt.Fprintln(w, a.Text)
	fmt.Fprintf(w, "\nstatus: %s  provider: %s  generation: %d\n", a.Status, a.Provider, a.Generation)
	for _, n := range a.Notices {
		fmt.Fprintf(w, "notice: %s\n", n)
	}
	if len(a.Sources) > 0 {
		fmt.Fprintln(w)
		writeSources(w, a.Sources)
	}
}

func writeSources(w io.Writer, chunks []model.ScoredChunk) {
	for i, c := range chunks {
		fmt.Fprintf(w, "[%d] %.3f %s\n    %s\n", i+1, c.Score, c.Chunk.Metadata[model.MetaTable], c.Chunk.Text)
	}
}
