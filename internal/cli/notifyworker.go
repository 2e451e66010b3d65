package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/orderflow/internal/config"
	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/notify"
	"github.com/buildtall-systems/orderflow/internal/queue"
)

var notificationWorkerCmd = &cobra.Command{
	Use:   "notification-worker",
	Short: "Start the notification worker",
	Long: `Start the notification worker. It turns fulfillment events into customer
notifications, records their delivery in the database, and periodically sweeps
stuck Pending notifications for another delivery attempt.`,
	RunE: runNotificationWorker,
}

func init() {
	rootCmd.AddCommand(notificationWorkerCmd)
}

func runNotificationWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.Verbose)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fulfillmentEvents, err := queue.NewFileQueue(cfg.Queue.BaseDir, cfg.Queue.FulfillmentEvents, logger)
	if err != nil {
		return fmt.Errorf("opening fulfillment-events queue: %w", err)
	}

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	worker := notify.NewWorker(notify.WorkerConfig{
		FulfillmentEvents: fulfillmentEvents,
		DB:                database,
		Sender:            &notify.SimulatedSender{Delay: cfg.Notifications.SendDelay, Log: logger},
		PollInterval:      cfg.Notifications.PollInterval,
		SweepEvery:        cfg.Notifications.SweepEvery,
		SweepBatch:        cfg.Notifications.SweepBatch,
		Log:               logger,
	})

	logger.Info().
		Dur("pollInterval", cfg.Notifications.PollInterval).
		Int("sweepEvery", cfg.Notifications.SweepEvery).
		Msg("notification worker started")
	return worker.Run(ctx)
}
