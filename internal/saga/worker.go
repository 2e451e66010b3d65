// Package saga runs the order fulfillment saga: it drains the order-events
// queue, drives each order through its status state machine, reserves
// inventory, and publishes the outcome on the fulfillment-events queue. A
// claimed message is only completed or failed after every downstream call
// for it has resolved.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/fsm"
	"github.com/buildtall-systems/orderflow/internal/queue"
	"github.com/buildtall-systems/orderflow/internal/trace"
)

// Worker is one order saga process. Throughput is scaled by running more
// workers racing on the same queue directories; a single worker processes
// messages strictly one at a time.
type Worker struct {
	orderEvents       queue.Queue
	fulfillmentEvents queue.Queue
	orders            *OrderClient
	inventory         *InventoryClient
	pollInterval      time.Duration
	log               zerolog.Logger
}

// WorkerConfig provides the worker's collaborators and loop settings.
type WorkerConfig struct {
	OrderEvents       queue.Queue
	FulfillmentEvents queue.Queue
	Orders            *OrderClient
	Inventory         *InventoryClient
	PollInterval      time.Duration
	Log               zerolog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}
	return &Worker{
		orderEvents:       cfg.OrderEvents,
		fulfillmentEvents: cfg.FulfillmentEvents,
		orders:            cfg.Orders,
		inventory:         cfg.Inventory,
		pollInterval:      pollInterval,
		log:               cfg.Log.With().Str("component", "saga-worker").Logger(),
	}
}

// Run polls until ctx is cancelled. A message already claimed finishes its
// current step before the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("pollInterval", w.pollInterval).Msg("order saga worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("order saga worker stopping")
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll processes the order events currently visible, then returns.
func (w *Worker) Poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		env, token, err := w.orderEvents.Dequeue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("failed to claim order event")
			// A claimed but unreadable message is poison; dead-letter
			// it so it cannot be claimed again.
			if token != "" {
				if failErr := w.orderEvents.Fail(token); failErr != nil {
					w.log.Error().Err(failErr).Msg("failed to dead-letter poison message")
				}
			}
			return
		}
		if env == nil {
			return
		}
		w.processEnvelope(ctx, env, token)
	}
}

func (w *Worker) processEnvelope(ctx context.Context, env *queue.Envelope, token string) {
	var evt queue.OrderEvent
	if err := env.Decode(&evt); err != nil {
		w.log.Error().Err(err).Str("messageId", env.MessageID).Msg("undecodable order event")
		if failErr := w.orderEvents.Fail(token); failErr != nil {
			w.log.Error().Err(failErr).Msg("failed to dead-letter order event")
		}
		return
	}

	ctx = trace.ContextWith(ctx, env.TraceParent, env.TraceState)
	logger := w.log.With().Str("orderNumber", evt.OrderNumber).Logger()
	if traceID := trace.TraceID(ctx); traceID != "" {
		logger = logger.With().Str("traceId", traceID).Logger()
	}
	logger.Info().
		Str("eventType", evt.EventType).
		Int64("orderId", evt.OrderID).
		Msg("received order event")

	// Step 1: mark the order Processing.
	if err := w.orders.UpdateStatus(ctx, evt.OrderID, fsm.StatusProcessing); err != nil {
		reason := err.Error()
		if errors.Is(err, ErrOrderNotFound) {
			reason = "Order not found in order API"
		}
		logger.Error().Err(err).Msg("failed to set order Processing")
		w.failOrder(ctx, logger, evt, env, reason, token)
		return
	}
	logger.Info().Msg("order set to Processing")

	// Step 2: fetch the full order to build the reservation request.
	order, err := w.orders.GetByNumber(ctx, evt.OrderNumber)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrOrderNotFound) {
			reason = "Order not found in order API"
		}
		logger.Error().Err(err).Msg("could not retrieve order")
		w.failOrder(ctx, logger, evt, env, reason, token)
		return
	}

	// Step 3: reserve inventory for every line.
	request := ReservationRequest{
		OrderNumber: order.OrderNumber,
		Lines:       make([]db.ReservationLine, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		request.Lines = append(request.Lines, db.ReservationLine{
			ProductID: item.ProductID,
			Sku:       item.Sku,
			Quantity:  item.Quantity,
		})
	}
	logger.Info().Int("lines", len(request.Lines)).Msg("reserving inventory")

	result, err := w.inventory.Reserve(ctx, request)
	if err != nil {
		logger.Error().Err(err).Msg("inventory reservation call failed")
		w.failOrder(ctx, logger, evt, env, err.Error(), token)
		return
	}
	if !result.Success {
		reason := result.FailureReason
		if reason == "" {
			reason = "Inventory reservation failed"
		}
		logger.Warn().Str("reason", reason).Msg("inventory reservation rejected")
		w.failOrder(ctx, logger, evt, env, reason, token)
		return
	}
	logger.Info().Msg("inventory reserved")

	// Step 4: this saga has no awaiting-shipment pause; the order moves
	// through InventoryReserved straight to Fulfilled.
	if err := w.orders.UpdateStatus(ctx, evt.OrderID, fsm.StatusInventoryReserved); err != nil {
		logger.Error().Err(err).Msg("failed to set order InventoryReserved")
		w.failOrder(ctx, logger, evt, env, err.Error(), token)
		return
	}
	if err := w.orders.UpdateStatus(ctx, evt.OrderID, fsm.StatusFulfilled); err != nil {
		logger.Error().Err(err).Msg("failed to set order Fulfilled")
		w.failOrder(ctx, logger, evt, env, err.Error(), token)
		return
	}
	logger.Info().Msg("order fulfilled")

	if err := w.emitFulfillment(ctx, evt, env, true, ""); err != nil {
		logger.Error().Err(err).Msg("failed to publish fulfillment event")
		if failErr := w.orderEvents.Fail(token); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to dead-letter order event")
		}
		return
	}

	if err := w.orderEvents.Complete(token); err != nil {
		logger.Error().Err(err).Msg("failed to complete order event")
		return
	}
	logger.Info().Msg("order event completed")
}

// failOrder is the shared failure path: move the order to Failed (best
// effort), publish a failure fulfillment event, and dead-letter the source
// message. No automatic redelivery happens after this.
func (w *Worker) failOrder(ctx context.Context, logger zerolog.Logger, evt queue.OrderEvent, env *queue.Envelope, reason string, token string) {
	if err := w.orders.UpdateStatus(ctx, evt.OrderID, fsm.StatusFailed); err != nil {
		logger.Error().Err(err).Msg("failed to set order Failed")
	}

	if err := w.emitFulfillment(ctx, evt, env, false, reason); err != nil {
		logger.Error().Err(err).Msg("failed to publish failure fulfillment event")
	}

	if err := w.orderEvents.Fail(token); err != nil {
		logger.Error().Err(err).Msg("failed to dead-letter order event")
	}
}

// emitFulfillment publishes the saga outcome, carrying the source
// envelope's trace context forward unchanged.
func (w *Worker) emitFulfillment(ctx context.Context, evt queue.OrderEvent, source *queue.Envelope, success bool, reason string) error {
	env, err := queue.NewEnvelope(queue.TypeFulfillmentEvent, queue.FulfillmentEvent{
		OrderNumber:   evt.OrderNumber,
		OrderID:       evt.OrderID,
		CustomerEmail: evt.CustomerEmail,
		CustomerName:  evt.CustomerName,
		Success:       success,
		FailureReason: reason,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	env.TraceParent = source.TraceParent
	env.TraceState = source.TraceState
	return w.fulfillmentEvents.Enqueue(ctx, env)
}
