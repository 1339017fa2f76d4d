package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samargunners/par-delta-dashboard/internal/platform/rabbitmq"
)

var refreshReason string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Queue an index rebuild for the running server",
	Long: `Publish a refresh request to the RabbitMQ refresh queue. The server's refresh
worker rebuilds the index from fresh table data.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshReason, "reason", "", "Reason recorded with the request")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url (RABBITMQ_URL) is not configured")
	}

	conn, err := rabbitmq.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.RefreshQueue)
	if err != nil {
		return err
	}
	defer conn.Close()

	requestedBy := os.Getenv("USER")
	if requestedBy == "" {
		requestedBy = "ragctl"
	}
	pub := rabbitmq.NewPublisher(conn, cfg.RabbitMQ.RefreshQueue)
	if err := pub.PublishRefresh(ctx, rabbitmq.RefreshRequest{RequestedBy: requestedBy, Reason: refreshReason}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "refresh queued on %s\n", cfg.RabbitMQ.RefreshQueue)
	return nil
}
