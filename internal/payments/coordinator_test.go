package payments

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchbot/internal/ledger"
	"lunchbot/internal/logger"
	"lunchbot/internal/models"
	"lunchbot/internal/store"
)

// scriptedProvider replays a fixed status sequence, holding the last one.
type scriptedProvider struct {
	mu       sync.Mutex
	statuses []Status
	findErr  error
	canceled []string
}

func (p *scriptedProvider) Create(ctx context.Context, amount int, description string) (*Intent, error) {
	return &Intent{ID: "pi-1", Amount: amount, Status: StatusPending, CreatedAt: time.Now()}, nil
}

func (p *scriptedProvider) Find(ctx context.Context, id string) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findErr != nil {
		return "", p.findErr
	}
	status := p.statuses[0]
	if len(p.statuses) > 1 {
		p.statuses = p.statuses[1:]
	}
	return status, nil
}

func (p *scriptedProvider) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, id)
	return nil
}

func (p *scriptedProvider) cancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.canceled)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, phone, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type fixture struct {
	pending  *store.PendingOrders
	csv      *ledger.CSVLedger
	provider *scriptedProvider
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T, provider *scriptedProvider, timeout time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logger.New("test")

	pending := store.OpenPendingOrders(filepath.Join(dir, "orders.json"), log)
	csvLedger := ledger.NewCSVLedger(filepath.Join(dir, "ledger.csv"))
	settler := ledger.NewSettler(pending, csvLedger, log)
	notifier := &recordingNotifier{}

	coord := NewCoordinator(provider, settler, pending, notifier, log, 5*time.Millisecond, timeout)
	return &fixture{pending: pending, csv: csvLedger, provider: provider, notifier: notifier, coord: coord}
}

func cartLine(phone string) models.OrderLine {
	return models.OrderLine{
		Phone:         phone,
		Date:          "01.06.2025",
		Weekday:       "Воскресенье",
		Item:          "Комплексный обед",
		Price:         250,
		PaymentStatus: models.PaymentUnpaid,
		Address:       "ул. Ленина, 1",
		CustomerName:  "Иван",
	}
}

func intentFor(phone string) *Intent {
	return &Intent{ID: "pi-1", Phone: phone, Amount: 250, Status: StatusPending, CreatedAt: time.Now()}
}

func TestWatcherSettlesAfterPendingPolls(t *testing.T) {
	statuses := make([]Status, 0, 11)
	for i := 0; i < 10; i++ {
		statuses = append(statuses, StatusPending)
	}
	statuses = append(statuses, StatusSucceeded)

	f := newFixture(t, &scriptedProvider{statuses: statuses}, time.Minute)
	f.pending.Append(cartLine("79991234567"))

	require.NoError(t, f.coord.Begin(context.Background(), intentFor("79991234567")))

	require.Eventually(t, func() bool { return !f.coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	rows, err := f.csv.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1, "exactly one ledger commit")
	assert.Equal(t, models.PaymentCard, rows[0].PaymentStatus)
	assert.Equal(t, 0, f.pending.CountFor("79991234567"))
	assert.Equal(t, 1, f.notifier.count(), "exactly one notification")
}

func TestWatcherTimeoutClearsCart(t *testing.T) {
	f := newFixture(t, &scriptedProvider{statuses: []Status{StatusPending}}, 30*time.Millisecond)
	f.pending.Append(cartLine("79991234567"))

	require.NoError(t, f.coord.Begin(context.Background(), intentFor("79991234567")))

	require.Eventually(t, func() bool { return !f.coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.provider.cancelCount(), "cancellation issued to provider")
	assert.Equal(t, 0, f.pending.CountFor("79991234567"), "expired intent forfeits the cart")

	rows, err := f.csv.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows, "no ledger entry for an expired payment")
	assert.Equal(t, 1, f.notifier.count(), "notified exactly once")
}

func TestWatcherCanceledKeepsCart(t *testing.T) {
	f := newFixture(t, &scriptedProvider{statuses: []Status{StatusCanceled, StatusSucceeded}}, time.Minute)
	f.pending.Append(cartLine("79991234567"))

	require.NoError(t, f.coord.Begin(context.Background(), intentFor("79991234567")))

	require.Eventually(t, func() bool { return !f.coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	// The cancellation was the first terminal observation; the later
	// succeeded status must not settle anything.
	time.Sleep(30 * time.Millisecond)
	rows, err := f.csv.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows, "no double settle after out-of-order statuses")
	assert.Equal(t, 1, f.pending.CountFor("79991234567"), "cart stays pending for retry")
	assert.Equal(t, 1, f.notifier.count())
}

// flakySettler fails its first few settle attempts, then delegates.
type flakySettler struct {
	mu       sync.Mutex
	failures int
	inner    *ledger.Settler
}

func (s *flakySettler) Settle(ctx context.Context, phone string, method models.PaymentStatus) (string, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return "", errors.New("ledger write failed")
	}
	s.mu.Unlock()
	return s.inner.Settle(ctx, phone, method)
}

func TestWatcherRetriesSettleUntilItCommits(t *testing.T) {
	dir := t.TempDir()
	log := logger.New("test")

	pending := store.OpenPendingOrders(filepath.Join(dir, "orders.json"), log)
	csvLedger := ledger.NewCSVLedger(filepath.Join(dir, "ledger.csv"))
	settler := &flakySettler{failures: 2, inner: ledger.NewSettler(pending, csvLedger, log)}
	notifier := &recordingNotifier{}
	provider := &scriptedProvider{statuses: []Status{StatusSucceeded}}

	coord := NewCoordinator(provider, settler, pending, notifier, log, 5*time.Millisecond, time.Minute)
	pending.Append(cartLine("79991234567"))

	require.NoError(t, coord.Begin(context.Background(), intentFor("79991234567")))

	require.Eventually(t, func() bool { return !coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	rows, err := csvLedger.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1, "committed once the ledger recovered")
	assert.Equal(t, 0, pending.CountFor("79991234567"))
	assert.Equal(t, 1, notifier.count(), "only the success notification")
}

func TestWatcherStopsOnProviderError(t *testing.T) {
	f := newFixture(t, &scriptedProvider{findErr: errors.New("connection refused")}, time.Minute)
	f.pending.Append(cartLine("79991234567"))

	require.NoError(t, f.coord.Begin(context.Background(), intentFor("79991234567")))

	require.Eventually(t, func() bool { return !f.coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.notifier.count(), "reported once, no retry loop")
	assert.Equal(t, 1, f.pending.CountFor("79991234567"), "cart untouched")
}

func TestSecondIntentRejectedWhileActive(t *testing.T) {
	f := newFixture(t, &scriptedProvider{statuses: []Status{StatusPending}}, time.Minute)
	f.pending.Append(cartLine("79991234567"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.coord.Begin(ctx, intentFor("79991234567")))
	assert.True(t, f.coord.Active("79991234567"))

	err := f.coord.Begin(ctx, intentFor("79991234567"))
	assert.ErrorIs(t, err, ErrIntentActive)

	// A different customer is not blocked.
	require.NoError(t, f.coord.Begin(ctx, intentFor("70000000001")))
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, &scriptedProvider{statuses: []Status{StatusPending}}, time.Minute)
	f.pending.Append(cartLine("79991234567"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.coord.Begin(ctx, intentFor("79991234567")))

	cancel()
	require.Eventually(t, func() bool { return !f.coord.Active("79991234567") },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.pending.CountFor("79991234567"), "shutdown leaves the cart alone")
}
