package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-booking/internal/logger"
)

// Worker turns consumed notification payloads into mail.
type Worker struct {
	Mailer  Mailer
	Resolve RecipientResolver
	Logger  *logger.Logger
}

// Handle matches the kafka consumer handler signature.
func (w *Worker) Handle(ctx context.Context, topic string, _ []byte, value []byte) error {
	var n Notification
	if err := json.Unmarshal(value, &n); err != nil {
		return fmt.Errorf("decode notification from %s: %w", topic, err)
	}

	if n.Recipient == "" && w.Resolve != nil {
		addr, err := w.Resolve(ctx, n.UserID)
		if err != nil {
			return fmt.Errorf("resolve recipient for user %s: %w", n.UserID, err)
		}
		n.Recipient = addr
	}
	if n.Recipient == "" {
		return ErrNoRecipient
	}

	if err := w.Mailer.Send(ctx, n.Recipient, n.Subject, n.Body); err != nil {
		return err
	}
	w.Logger.Info("NOTIFY", fmt.Sprintf("Sent %s for booking %s to %s", n.Kind, n.BookingID, n.Recipient))
	return nil
}
