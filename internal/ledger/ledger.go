// Package ledger moves settled carts into the permanent order history.
// Settlement is the one operation where losing data is unacceptable: if
// the ledger append fails after lines were detached from the pending
// store, they are restored for a later retry.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

// ErrNoPendingOrders is returned when settlement finds nothing to settle.
var ErrNoPendingOrders = errors.New("no pending orders to settle")

// Columns is the fixed ledger schema, in append order.
var Columns = []string{
	"phone", "date", "item", "price", "payment_method",
	"weekday", "address", "name", "settlement_id", "comment",
}

// Writer appends settled rows to a ledger backend.
type Writer interface {
	Append(ctx context.Context, lines []models.OrderLine) error
}

// Reader lists settled rows, for the admin summary and export commands.
type Reader interface {
	Rows(ctx context.Context) ([]models.OrderLine, error)
}

// PendingStore is the slice of the pending-order store settlement needs.
type PendingStore interface {
	RemoveFor(phone string) []models.OrderLine
	Restore(lines []models.OrderLine)
}

// Settler commits a customer's pending cart to the ledger as one logical
// transaction.
type Settler struct {
	pending PendingStore
	writer  Writer
	log     *logger.Logger
}

// NewSettler creates a settler over the given pending store and backend.
func NewSettler(pending PendingStore, writer Writer, log *logger.Logger) *Settler {
	return &Settler{pending: pending, writer: writer, log: log}
}

// Settle detaches all of the customer's pending lines, stamps them with
// one fresh settlement id and the payment method, and appends them to the
// ledger. On append failure the detached lines are restored to the
// pending store untouched and the error is returned.
func (s *Settler) Settle(ctx context.Context, phone string, method models.PaymentStatus) (string, error) {
	requestID := logger.GenerateRequestID()

	removed := s.pending.RemoveFor(phone)
	if len(removed) == 0 {
		return "", ErrNoPendingOrders
	}

	settlementID := uuid.NewString()
	stamped := make([]models.OrderLine, len(removed))
	copy(stamped, removed)
	for i := range stamped {
		stamped[i].SettlementID = settlementID
		stamped[i].PaymentStatus = method
		if stamped[i].Comment == "" {
			stamped[i].Comment = models.DefaultComment
		}
	}

	if err := s.writer.Append(ctx, stamped); err != nil {
		// Compensating action: the lines go back exactly as they were.
		s.pending.Restore(removed)
		s.log.Error("settlement_failed", "Ledger append failed, pending lines restored", requestID, err,
			map[string]interface{}{"phone": phone, "lines": len(removed)})
		return "", fmt.Errorf("append settlement: %w", err)
	}

	s.log.Info("settlement_committed", "Cart settled", requestID, map[string]interface{}{
		"phone":          phone,
		"settlement_id":  settlementID,
		"payment_method": string(method),
		"lines":          len(stamped),
	})
	return settlementID, nil
}
