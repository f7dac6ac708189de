package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
	"lunchbot/internal/store"
)

func newFixture(t *testing.T) (*store.PendingOrders, *CSVLedger, *Settler) {
	t.Helper()
	dir := t.TempDir()
	log := logger.New("test")
	pending := store.OpenPendingOrders(filepath.Join(dir, "orders.json"), log)
	csvLedger := NewCSVLedger(filepath.Join(dir, "ledger.csv"))
	return pending, csvLedger, NewSettler(pending, csvLedger, log)
}

func pendingLine(phone, item string, price int) models.OrderLine {
	return models.OrderLine{
		Phone:         phone,
		Date:          "01.06.2025",
		Weekday:       "Воскресенье",
		Item:          item,
		Price:         price,
		PaymentStatus: models.PaymentUnpaid,
		Address:       "ул. Ленина, 1",
		CustomerName:  "Иван",
	}
}

func TestSettleRoundTrip(t *testing.T) {
	pending, csvLedger, settler := newFixture(t)
	ctx := context.Background()

	pending.Append(pendingLine("79991234567", "Комплексный обед", 250))
	pending.Append(pendingLine("79991234567", "Компот", 50))
	pending.Append(pendingLine("70000000001", "Салат", 120))

	id, err := settler.Settle(ctx, "79991234567", models.PaymentCash)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rows, err := csvLedger.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Equal(t, id, row.SettlementID, "all rows share one settlement id")
		assert.Equal(t, models.PaymentCash, row.PaymentStatus)
		assert.Equal(t, models.DefaultComment, row.Comment, "missing comment defaults to the sentinel")
	}

	assert.Equal(t, 0, pending.CountFor("79991234567"))
	assert.Equal(t, 1, pending.CountFor("70000000001"), "other customers stay pending")
}

func TestSettleNothingPending(t *testing.T) {
	_, _, settler := newFixture(t)

	_, err := settler.Settle(context.Background(), "79991234567", models.PaymentCash)
	assert.ErrorIs(t, err, ErrNoPendingOrders)
}

func TestSettleKeepsComment(t *testing.T) {
	pending, csvLedger, settler := newFixture(t)
	ctx := context.Background()

	pending.Append(pendingLine("79991234567", "Комплексный обед", 250))
	pending.UpdateComment("79991234567", "без лука")

	_, err := settler.Settle(ctx, "79991234567", models.PaymentCard)
	require.NoError(t, err)

	rows, err := csvLedger.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "без лука", rows[0].Comment)
}

type failingWriter struct{ calls int }

func (w *failingWriter) Append(ctx context.Context, lines []models.OrderLine) error {
	w.calls++
	return errors.New("disk full")
}

func TestSettleRestoresOnAppendFailure(t *testing.T) {
	dir := t.TempDir()
	log := logger.New("test")
	pending := store.OpenPendingOrders(filepath.Join(dir, "orders.json"), log)

	writer := &failingWriter{}
	settler := NewSettler(pending, writer, log)

	pending.Append(pendingLine("79991234567", "Комплексный обед", 250))

	_, err := settler.Settle(context.Background(), "79991234567", models.PaymentCash)
	require.Error(t, err)
	require.Equal(t, 1, writer.calls)

	// The lines are back, untouched by the failed settlement.
	snapshot := pending.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Empty(t, snapshot[0].SettlementID)
	assert.Equal(t, models.PaymentUnpaid, snapshot[0].PaymentStatus)

	// A retry against a healthy backend succeeds.
	csvLedger := NewCSVLedger(filepath.Join(dir, "ledger.csv"))
	retry := NewSettler(pending, csvLedger, log)
	_, err = retry.Settle(context.Background(), "79991234567", models.PaymentCash)
	assert.NoError(t, err)
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	pending, csvLedger, settler := newFixture(t)
	ctx := context.Background()

	pending.Append(pendingLine("79991234567", "Комплексный обед", 250))
	_, err := settler.Settle(ctx, "79991234567", models.PaymentCash)
	require.NoError(t, err)

	pending.Append(pendingLine("79991234567", "Компот", 50))
	_, err = settler.Settle(ctx, "79991234567", models.PaymentCash)
	require.NoError(t, err)

	rows, err := csvLedger.Rows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "two settlements, two data rows, one header")
}

func TestSummarizeDay(t *testing.T) {
	pending, csvLedger, settler := newFixture(t)
	ctx := context.Background()

	pending.Append(pendingLine("79991234567", "Комплексный обед", 250))
	pending.Append(pendingLine("79991234567", "Компот", 50))
	other := pendingLine("70000000001", "Комплексный обед", 250)
	other.Address = "пр. Мира, 10"
	pending.Append(other)

	_, err := settler.Settle(ctx, "79991234567", models.PaymentCash)
	require.NoError(t, err)
	_, err = settler.Settle(ctx, "70000000001", models.PaymentCard)
	require.NoError(t, err)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	summary, err := SummarizeDay(ctx, csvLedger, day)
	require.NoError(t, err)

	assert.False(t, summary.Empty())
	assert.Equal(t, 2, summary.Totals["Комплексный обед"])
	assert.Equal(t, 1, summary.Totals["Компот"])
	assert.Equal(t, 1, summary.ByAddress["пр. Мира, 10"]["Комплексный обед"])

	text := summary.Format()
	assert.Contains(t, text, "Адрес доставки: ул. Ленина, 1")
	assert.Contains(t, text, "Итого:")

	// A date with no orders yields an empty summary, not an error.
	empty, err := SummarizeDay(ctx, csvLedger, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}
