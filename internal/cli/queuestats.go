package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/orderflow/internal/config"
	"github.com/buildtall-systems/orderflow/internal/queue"
)

var queueStatsCmd = &cobra.Command{
	Use:   "queue-stats",
	Short: "Show per-folder message counts for each queue topic",
	RunE:  runQueueStats,
}

func init() {
	rootCmd.AddCommand(queueStatsCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.Verbose)

	topics := []string{cfg.Queue.OrderEvents, cfg.Queue.FulfillmentEvents}
	for _, topic := range topics {
		q, err := queue.NewFileQueue(cfg.Queue.BaseDir, topic, logger)
		if err != nil {
			return fmt.Errorf("opening %s queue: %w", topic, err)
		}
		counts, err := q.FolderCounts()
		if err != nil {
			return fmt.Errorf("counting %s queue: %w", topic, err)
		}
		fmt.Printf("%s:\n", topic)
		fmt.Printf("  pending:    %d\n", counts.Pending)
		fmt.Printf("  processing: %d\n", counts.Processing)
		fmt.Printf("  completed:  %d\n", counts.Completed)
		fmt.Printf("  failed:     %d\n", counts.Failed)
	}
	return nil
}
