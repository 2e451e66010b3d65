package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/orderflow/internal/config"
	"github.com/buildtall-systems/orderflow/internal/queue"
	"github.com/buildtall-systems/orderflow/internal/saga"
)

var orderWorkerCmd = &cobra.Command{
	Use:   "order-worker",
	Short: "Start the order saga worker",
	Long: `Start the order saga worker. It drains the order-events queue, drives each
order through processing and inventory reservation against the order and
inventory APIs, and publishes the outcome on the fulfillment-events queue.
Run several instances against the same queue directory to scale out.`,
	RunE: runOrderWorker,
}

func init() {
	rootCmd.AddCommand(orderWorkerCmd)
}

func runOrderWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.Verbose)

	orderEvents, err := queue.NewFileQueue(cfg.Queue.BaseDir, cfg.Queue.OrderEvents, logger)
	if err != nil {
		return fmt.Errorf("opening order-events queue: %w", err)
	}
	fulfillmentEvents, err := queue.NewFileQueue(cfg.Queue.BaseDir, cfg.Queue.FulfillmentEvents, logger)
	if err != nil {
		return fmt.Errorf("opening fulfillment-events queue: %w", err)
	}

	maxRetries := uint64(0)
	if cfg.Saga.MaxRetries > 0 {
		maxRetries = uint64(cfg.Saga.MaxRetries)
	}
	orders := saga.NewOrderClient(saga.ClientConfig{
		BaseURL:    cfg.Orders.BaseURL,
		Timeout:    cfg.Saga.HTTPTimeout,
		MaxRetries: maxRetries,
	})
	inventory := saga.NewInventoryClient(saga.ClientConfig{
		BaseURL:    cfg.Inventory.BaseURL,
		Timeout:    cfg.Saga.HTTPTimeout,
		MaxRetries: maxRetries,
	})

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	worker := saga.NewWorker(saga.WorkerConfig{
		OrderEvents:       orderEvents,
		FulfillmentEvents: fulfillmentEvents,
		Orders:            orders,
		Inventory:         inventory,
		PollInterval:      cfg.Saga.PollInterval,
		Log:               logger,
	})

	logger.Info().
		Str("orderAPI", cfg.Orders.BaseURL).
		Str("inventoryAPI", cfg.Inventory.BaseURL).
		Dur("pollInterval", cfg.Saga.PollInterval).
		Msg("order saga worker started")
	return worker.Run(ctx)
}
