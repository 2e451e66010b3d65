// Package notify turns fulfillment events into customer notifications and
// tracks their delivery. Queue delivery failures dead-letter the message;
// notification delivery failures are a business concern, retried by a
// periodic sweep over Pending rows instead.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/queue"
	"github.com/buildtall-systems/orderflow/internal/trace"
)

type Worker struct {
	fulfillmentEvents queue.Queue
	db                *db.DB
	sender            Sender
	pollInterval      time.Duration
	sweepEvery        int
	sweepBatch        int
	log               zerolog.Logger

	loopCount int
}

// WorkerConfig provides the worker's collaborators and loop settings.
type WorkerConfig struct {
	FulfillmentEvents queue.Queue
	DB                *db.DB
	Sender            Sender
	PollInterval      time.Duration
	SweepEvery        int // run the pending sweep every Nth poll cycle
	SweepBatch        int // max pending notifications revisited per sweep
	Log               zerolog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}
	sweepEvery := cfg.SweepEvery
	if sweepEvery == 0 {
		sweepEvery = 6
	}
	sweepBatch := cfg.SweepBatch
	if sweepBatch == 0 {
		sweepBatch = 10
	}
	return &Worker{
		fulfillmentEvents: cfg.FulfillmentEvents,
		db:                cfg.DB,
		sender:            cfg.Sender,
		pollInterval:      pollInterval,
		sweepEvery:        sweepEvery,
		sweepBatch:        sweepBatch,
		log:               cfg.Log.With().Str("component", "notification-worker").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("pollInterval", w.pollInterval).Msg("notification worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("notification worker stopping")
			return nil
		case <-ticker.C:
			w.Poll(ctx)
			w.loopCount++
			if w.loopCount%w.sweepEvery == 0 {
				w.SweepPending(ctx)
			}
		}
	}
}

// Poll consumes the fulfillment events currently visible.
func (w *Worker) Poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		env, token, err := w.fulfillmentEvents.Dequeue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("failed to claim fulfillment event")
			if token != "" {
				if failErr := w.fulfillmentEvents.Fail(token); failErr != nil {
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
	var evt queue.FulfillmentEvent
	if err := env.Decode(&evt); err != nil {
		w.log.Error().Err(err).Str("messageId", env.MessageID).Msg("undecodable fulfillment event")
		if failErr := w.fulfillmentEvents.Fail(token); failErr != nil {
			w.log.Error().Err(failErr).Msg("failed to dead-letter fulfillment event")
		}
		return
	}

	ctx = trace.ContextWith(ctx, env.TraceParent, env.TraceState)
	logger := w.log.With().Str("orderNumber", evt.OrderNumber).Logger()
	if traceID := trace.TraceID(ctx); traceID != "" {
		logger = logger.With().Str("traceId", traceID).Logger()
	}
	logger.Info().Bool("success", evt.Success).Msg("received fulfillment event")

	notification := buildNotification(evt)

	if _, err := w.db.CreateNotification(ctx, notification); err != nil {
		logger.Error().Err(err).Msg("failed to persist notification")
		if failErr := w.fulfillmentEvents.Fail(token); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to dead-letter fulfillment event")
		}
		return
	}
	logger.Info().
		Int64("notificationId", notification.ID).
		Str("type", notification.Type).
		Msg("notification created")

	if err := w.sender.Send(ctx, notification); err != nil {
		// The notification stays Pending; the sweep revisits it.
		logger.Error().Err(err).Int64("notificationId", notification.ID).Msg("send failed")
		if failErr := w.fulfillmentEvents.Fail(token); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to dead-letter fulfillment event")
		}
		return
	}

	if err := w.db.MarkNotificationSent(ctx, notification.ID); err != nil {
		logger.Error().Err(err).Int64("notificationId", notification.ID).Msg("failed to mark notification sent")
		if failErr := w.fulfillmentEvents.Fail(token); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to dead-letter fulfillment event")
		}
		return
	}
	logger.Info().Int64("notificationId", notification.ID).Msg("notification sent")

	if err := w.fulfillmentEvents.Complete(token); err != nil {
		logger.Error().Err(err).Msg("failed to complete fulfillment event")
	}
}

// SweepPending re-attempts delivery for up to sweepBatch of the oldest
// Pending notifications. A send that errors here downgrades the
// notification to Failed; there are no further automatic retries after
// that.
func (w *Worker) SweepPending(ctx context.Context) {
	pending, err := w.db.GetPendingNotifications(ctx, w.sweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to list pending notifications")
		return
	}
	if len(pending) == 0 {
		return
	}
	w.log.Info().Int("count", len(pending)).Msg("retrying pending notifications")

	for i := range pending {
		n := &pending[i]
		if err := w.sender.Send(ctx, n); err != nil {
			w.log.Warn().
				Err(err).
				Int64("notificationId", n.ID).
				Str("orderNumber", n.OrderNumber).
				Msg("retry failed, marking notification failed")
			if markErr := w.db.MarkNotificationFailed(ctx, n.ID); markErr != nil {
				w.log.Error().Err(markErr).Int64("notificationId", n.ID).Msg("failed to mark notification failed")
			}
			continue
		}
		if err := w.db.MarkNotificationSent(ctx, n.ID); err != nil {
			w.log.Error().Err(err).Int64("notificationId", n.ID).Msg("failed to mark notification sent")
			continue
		}
		w.log.Info().
			Int64("notificationId", n.ID).
			Str("orderNumber", n.OrderNumber).
			Msg("retry succeeded")
	}
}

func buildNotification(evt queue.FulfillmentEvent) *db.Notification {
	n := &db.Notification{
		OrderNumber:   evt.OrderNumber,
		CustomerName:  evt.CustomerName,
		CustomerEmail: evt.CustomerEmail,
	}
	if evt.Success {
		n.Type = db.NotificationTypeFulfilled
		n.Subject = fmt.Sprintf("Your order %s has been fulfilled!", evt.OrderNumber)
		n.Body = fmt.Sprintf(
			"Dear %s,\n\nGreat news! Your order %s has been successfully fulfilled and is being prepared for shipment.\n\nYou will receive a shipping confirmation once your package is on its way.\n\nThank you for shopping with us!",
			evt.CustomerName, evt.OrderNumber)
		return n
	}

	reason := evt.FailureReason
	if reason == "" {
		reason = "Unknown error"
	}
	n.Type = db.NotificationTypeFailed
	n.Subject = fmt.Sprintf("Issue with your order %s", evt.OrderNumber)
	n.Body = fmt.Sprintf(
		"Dear %s,\n\nWe're sorry, but there was an issue processing your order %s.\n\nReason: %s\n\nOur team has been notified and will look into this. If you have any questions, please contact our support team.\n\nWe apologize for the inconvenience.",
		evt.CustomerName, evt.OrderNumber, reason)
	return n
}
