package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lunchbot/internal/conversation"
	"lunchbot/internal/logger"
	"lunchbot/internal/models"
	"lunchbot/internal/store"
)

// Notifier delivers bot messages through the notifications exchange. It
// implements the notifier the payment coordinator needs and the
// broadcaster the admin flow needs.
type Notifier struct {
	pub       *Publisher
	customers *store.Customers
	logger    *logger.Logger
}

// NewNotifier creates a notifier over the given publisher.
func NewNotifier(pub *Publisher, customers *store.Customers, log *logger.Logger) *Notifier {
	return &Notifier{pub: pub, customers: customers, logger: log}
}

// Notify sends a text message to the customer with the given phone.
// Customers without a known chat cannot be reached.
func (n *Notifier) Notify(ctx context.Context, phone, text string) error {
	c, ok := n.customers.FindByPhone(phone)
	if !ok {
		return fmt.Errorf("no registered customer for phone %s", phone)
	}

	msg := models.NotificationMessage{
		ChatID:    c.ChatID,
		Phone:     phone,
		Text:      text,
		Timestamp: time.Now(),
	}
	return n.pub.PublishNotification(ctx, msg)
}

// Broadcast sends the text to every registered customer. Individual
// publish failures are collected so one unreachable chat does not stop
// the rest.
func (n *Notifier) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, c := range n.customers.All() {
		msg := models.NotificationMessage{
			ChatID:    c.ChatID,
			Phone:     c.Phone,
			Text:      text,
			Broadcast: true,
			Timestamp: time.Now(),
		}
		if err := n.pub.PublishNotification(ctx, msg); err != nil {
			n.logger.Error("broadcast_publish_failed", "Failed to publish broadcast message",
				"", err, map[string]interface{}{"chat_id": c.ChatID})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendReplies publishes the conversation machine's replies for one chat.
func (n *Notifier) SendReplies(ctx context.Context, chatID int64, replies []conversation.Reply) error {
	for _, r := range replies {
		msg := models.NotificationMessage{
			ChatID:    chatID,
			Text:      r.Text,
			Choices:   r.Choices,
			Document:  r.Document,
			Timestamp: time.Now(),
		}
		if err := n.pub.PublishNotification(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish reply: %w", err)
		}
	}
	return nil
}
