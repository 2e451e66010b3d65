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
	"github.com/buildtall-systems/orderflow/internal/inventory"
)

var inventoryAPICmd = &cobra.Command{
	Use:   "inventory-api",
	Short: "Start the inventory API service",
	Long:  `Start the inventory API. Reservations are all-or-nothing: a single rejected line rolls back the whole request and reports every failure reason.`,
	RunE:  runInventoryAPI,
}

func init() {
	rootCmd.AddCommand(inventoryAPICmd)
}

func runInventoryAPI(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	handler := inventory.NewHandler(database, logger)
	srv := &http.Server{
		Addr:    cfg.Inventory.ListenAddr,
		Handler: handler.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Inventory.ListenAddr).Msg("inventory API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving inventory API: %w", err)
	}
	return nil
}
