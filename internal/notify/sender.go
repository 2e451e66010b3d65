package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildtall-systems/orderflow/internal/db"
)

// Sender delivers one notification to the customer.
type Sender interface {
	Send(ctx context.Context, n *db.Notification) error
}

// SimulatedSender stands in for a real email gateway: it logs the send and
// waits out a configurable delivery delay.
type SimulatedSender struct {
	Delay time.Duration
	Log   zerolog.Logger
}

func (s *SimulatedSender) Send(ctx context.Context, n *db.Notification) error {
	s.Log.Info().
		Str("customerEmail", n.CustomerEmail).
		Str("subject", n.Subject).
		Msg("sending email")

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.Log.Info().
		Str("customerEmail", n.CustomerEmail).
		Str("orderNumber", n.OrderNumber).
		Msg("email sent")
	return nil
}
