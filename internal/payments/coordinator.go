package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"lunchbot/internal/ledger"
	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

// ErrIntentActive is returned when a customer already has an in-flight
// payment attempt.
var ErrIntentActive = errors.New("a payment is already in progress for this customer")

// Notifier delivers a message to a customer by identity. The watcher must
// not assume the originating conversation is still reachable, so phone is
// the only addressing it uses.
type Notifier interface {
	Notify(ctx context.Context, phone, text string) error
}

// Settler commits a customer's pending cart to the ledger.
type Settler interface {
	Settle(ctx context.Context, phone string, method models.PaymentStatus) (string, error)
}

// PendingCart is the slice of the pending store the timeout path needs.
type PendingCart interface {
	RemoveFor(phone string) []models.OrderLine
}

const (
	// DefaultPollInterval is how often a watcher queries the provider.
	DefaultPollInterval = 10 * time.Second
	// DefaultTimeout bounds the lifetime of every payment intent.
	DefaultTimeout = 10 * time.Minute
)

// Coordinator runs one watcher per in-flight payment intent, polling the
// provider until a terminal outcome or the hard timeout. Exactly one
// watcher may be active per customer.
type Coordinator struct {
	provider Provider
	settler  Settler
	pending  PendingCart
	notifier Notifier
	log      *logger.Logger

	pollInterval time.Duration
	timeout      time.Duration

	mu      sync.Mutex
	byPhone map[string]*watcher
}

// NewCoordinator creates a coordinator. Zero durations fall back to the
// defaults.
func NewCoordinator(provider Provider, settler Settler, pending PendingCart, notifier Notifier,
	log *logger.Logger, pollInterval, timeout time.Duration) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		provider:     provider,
		settler:      settler,
		pending:      pending,
		notifier:     notifier,
		log:          log,
		pollInterval: pollInterval,
		timeout:      timeout,
		byPhone:      map[string]*watcher{},
	}
}

// watcher guards the terminal transition of one intent: only the first
// observer of a terminal status acts, later observers are no-ops.
type watcher struct {
	intent *Intent

	mu   sync.Mutex
	done bool
}

// finish is the compare-and-set on the terminal state. It returns true
// exactly once.
func (w *watcher) finish() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	return true
}

// Active reports whether the customer has an in-flight intent.
func (c *Coordinator) Active(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byPhone[phone]
	return ok
}

// Begin registers the intent and starts its watcher. A second intent for
// the same customer while one is active is rejected.
func (c *Coordinator) Begin(ctx context.Context, intent *Intent) error {
	c.mu.Lock()
	if _, ok := c.byPhone[intent.Phone]; ok {
		c.mu.Unlock()
		return ErrIntentActive
	}
	w := &watcher{intent: intent}
	c.byPhone[intent.Phone] = w
	c.mu.Unlock()

	c.log.Info("payment_watch_started", "Watching payment intent", intent.ID, map[string]interface{}{
		"phone":  intent.Phone,
		"amount": intent.Amount,
	})

	go c.run(ctx, w)
	return nil
}

func (c *Coordinator) release(phone string) {
	c.mu.Lock()
	delete(c.byPhone, phone)
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, w *watcher) {
	defer c.release(w.intent.Phone)

	deadline := w.intent.CreatedAt.Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := c.provider.Find(ctx, w.intent.ID)
		if err != nil {
			// One report, then stop: spinning forever on a broken
			// provider link helps nobody.
			if !w.finish() {
				return
			}
			c.log.Error("payment_status_check_failed", "Failed to query payment status", w.intent.ID, err,
				map[string]interface{}{"phone": w.intent.Phone})
			c.notify(ctx, w.intent.Phone, "Не удалось проверить статус платежа. Попробуйте оплатить ещё раз.")
			return
		}

		switch status {
		case StatusSucceeded:
			if c.handleSucceeded(ctx, w) {
				return
			}
			// Settlement failed; the money is taken, so keep retrying on
			// the next ticks until the deadline.
			if time.Now().Before(deadline) {
				continue
			}
			if w.finish() {
				c.notify(ctx, w.intent.Phone, "Оплата получена, но заказ не удалось сохранить. Свяжитесь с администратором.")
			}
			return

		case StatusCanceled:
			if !w.finish() {
				return
			}
			c.log.Info("payment_canceled", "Payment canceled by provider", w.intent.ID,
				map[string]interface{}{"phone": w.intent.Phone})
			c.notify(ctx, w.intent.Phone, "Платёж отменён. Корзина сохранена, вы можете оплатить снова.")
			return

		default:
			if time.Now().Before(deadline) {
				continue
			}
			c.handleTimeout(ctx, w)
			return
		}
	}
}

// handleSucceeded tries to commit the paid cart. It reports whether the
// watcher is done; a failed settle leaves the restored cart pending and
// the intent unconsumed so the caller can retry.
func (c *Coordinator) handleSucceeded(ctx context.Context, w *watcher) bool {
	settlementID, err := c.settler.Settle(ctx, w.intent.Phone, models.PaymentCard)
	if errors.Is(err, ledger.ErrNoPendingOrders) {
		// The cart was already settled or cleared; nothing left to do.
		w.finish()
		return true
	}
	if err != nil {
		c.log.Error("payment_settlement_failed", "Payment succeeded but settlement failed", w.intent.ID, err,
			map[string]interface{}{"phone": w.intent.Phone})
		return false
	}

	if !w.finish() {
		return true
	}
	c.log.Info("payment_settled", "Payment succeeded, cart settled", w.intent.ID, map[string]interface{}{
		"phone":         w.intent.Phone,
		"settlement_id": settlementID,
	})
	c.notify(ctx, w.intent.Phone, "Оплата прошла успешно! Ваш заказ перенесён в историю.")
	return true
}

func (c *Coordinator) handleTimeout(ctx context.Context, w *watcher) {
	if !w.finish() {
		return
	}

	if err := c.provider.Cancel(ctx, w.intent.ID); err != nil {
		c.log.Error("payment_cancel_failed", "Failed to cancel expired payment", w.intent.ID, err,
			map[string]interface{}{"phone": w.intent.Phone})
	}

	// Expired unpaid intents forfeit the cart.
	removed := c.pending.RemoveFor(w.intent.Phone)
	c.log.Info("payment_expired", "Payment timed out, cart cleared", w.intent.ID, map[string]interface{}{
		"phone":         w.intent.Phone,
		"cleared_lines": len(removed),
	})
	c.notify(ctx, w.intent.Phone, "Время оплаты истекло. Платёж отменён, корзина очищена.")
}

func (c *Coordinator) notify(ctx context.Context, phone, text string) {
	if err := c.notifier.Notify(ctx, phone, text); err != nil {
		c.log.Error("notification_failed", "Failed to notify customer", "", err,
			map[string]interface{}{"phone": phone})
	}
}
