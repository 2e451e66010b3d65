package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/orderflow/internal/config"
	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/orders"
	"github.com/buildtall-systems/orderflow/internal/queue"
)

var orderAPICmd = &cobra.Command{
	Use:   "order-api",
	Short: "Start the order API service",
	Long:  `Start the order API. Creating an order computes its total, assigns a time-derived order number and publishes an OrderCreated event to the order-events queue.`,
	RunE:  runOrderAPI,
}

func init() {
	rootCmd.AddCommand(orderAPICmd)
}

func runOrderAPI(cmd *cobra.Command, args []string) error {
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
	logger.Info().Str("path", cfg.Database.Path).Msg("database ready")

	orderEvents, err := queue.NewFileQueue(cfg.Queue.BaseDir, cfg.Queue.OrderEvents, logger)
	if err != nil {
		return fmt.Errorf("opening order-events queue: %w", err)
	}

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	handler := orders.NewHandler(database, orderEvents, logger)
	srv := &http.Server{
		Addr:    cfg.Orders.ListenAddr,
		Handler: handler.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Orders.ListenAddr).Msg("order API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving order API: %w", err)
	}
	return nil
}
