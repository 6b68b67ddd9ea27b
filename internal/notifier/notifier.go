// Package notifier delivers private messages to chat users.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var ErrUnknownRecipient = errors.New("recipient is not a chat user id")

var sentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tipbot_direct_messages_total",
	Help: "Private messages sent to users, by result.",
}, []string{"result"})

// Sender delivers a message to a chat
type Sender interface {
	SendNotification(ctx context.Context, userID int64, text string) error
}

// Notifier sends private messages through a chat bot, throttled to the
// platform's bulk limit
type Notifier struct {
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a notifier sending at most perSecond messages per second
func New(sender Sender, perSecond float64, log *slog.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &Notifier{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     log,
	}
}

// SendDirectMessage sends text to the user identified by uniqueID
func (n *Notifier) SendDirectMessage(ctx context.Context, uniqueID, text string) error {
	userID, err := strconv.ParseInt(uniqueID, 10, 64)
	if err != nil {
		sentTotal.WithLabelValues("bad_recipient").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownRecipient, uniqueID)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := n.sender.SendNotification(ctx, userID, text); err != nil {
		sentTotal.WithLabelValues("error").Inc()
		n.log.Warn("send direct message", "user_id", userID, "error", err)
		return err
	}

	sentTotal.WithLabelValues("ok").Inc()
	return nil
}
