package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoRecipient = errors.New("notification has no recipient")

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaSink hands notifications to the notifier worker through Kafka,
// one topic per kind, keyed by booking id.
type KafkaSink struct {
	Publisher Publisher
	Topics    map[Kind]string
}

func (s *KafkaSink) Deliver(ctx context.Context, n Notification) error {
	topic, ok := s.Topics[n.Kind]
	if !ok {
		return fmt.Errorf("no topic configured for %s", n.Kind)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.Publisher.Publish(ctx, topic, n.BookingID, payload)
}

// MailSink sends the notification straight to the mailer, looking the
// recipient up by user id when the notification carries none.
type MailSink struct {
	Mailer  Mailer
	Resolve RecipientResolver
}

func (s *MailSink) Deliver(ctx context.Context, n Notification) error {
	if n.Recipient == "" && s.Resolve != nil {
		addr, err := s.Resolve(ctx, n.UserID)
		if err != nil {
			return fmt.Errorf("resolve recipient for user %s: %w", n.UserID, err)
		}
		n.Recipient = addr
	}
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	return s.Mailer.Send(ctx, n.Recipient, n.Subject, n.Body)
}

// FanOut delivers to every sink in order and joins their errors. A failing
// sink does not stop the ones after it.
type FanOut []Sink

func (f FanOut) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
