package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Build the index and print the session status",
	Long: `Build the index from the configured tables, falling back to the secondary
embedding provider if the primary cannot serve, and print the result.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
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
	if _, err := pipeline.Refresh(ctx); err != nil {
		return err
	}
	st := pipeline.Status()

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, st)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Provider:\t%s (%s)\n", st.ProviderLabel, st.Provider)
	if st.Degraded {
		fmt.Fprintf(tw, "Degraded:\t%s\n", st.FallbackReason)
	}
	fmt.Fprintf(tw, "Generation:\t%d\n", st.Generation)
	fmt.Fprintf(tw, "Tables:\t%d\n", len(st.Tables))
	fmt.Fprintf(tw, "Documents:\t%d\n", st.Documents)
	fmt.Fprintf(tw, "Chunks:\t%d\n", st.Chunks)
	fmt.Fprintf(tw, "Built:\t%s\n", st.BuiltAt.Format("2006-01-02 15:04:05"))
	for _, w := range st.Warnings {
		fmt.Fprintf(tw, "Warning:\t%s\n", w)
	}
	return tw.Flush()
}
