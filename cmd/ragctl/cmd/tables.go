package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the configured source tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		specs := bootstrap.TableSpecs(cfg)
		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, specs)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TABLE\tRECORD TYPE\tKEY\tORDER BY\tCOLUMNS")
		for _, s := range specs {
			cols := "*"
			if len(s.Columns) > 0 {
				cols = strings.Join(s.Columns, ",")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.RecordType, s.KeyColumn, s.OrderBy, cols)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}
