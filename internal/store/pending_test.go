package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

func testLine(phone, item string, price int) models.OrderLine {
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

func openTestStore(t *testing.T) *PendingOrders {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.json")
	return OpenPendingOrders(path, logger.New("test"))
}

func TestConcurrentAppendLosesNothing(t *testing.T) {
	s := openTestStore(t)

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Append(testLine(fmt.Sprintf("7999%07d", w), fmt.Sprintf("Обед %d", i), 100))
			}
		}(w)
	}
	wg.Wait()

	snapshot := s.Snapshot()
	require.Len(t, snapshot, workers*perWorker)

	perPhone := map[string]int{}
	for _, line := range snapshot {
		perPhone[line.Phone]++
	}
	for phone, n := range perPhone {
		assert.Equal(t, perWorker, n, "phone %s", phone)
	}
}

func TestRemoveForIsAtomic(t *testing.T) {
	s := openTestStore(t)
	s.Append(testLine("79991234567", "Комплексный обед", 250))
	s.Append(testLine("79991234567", "Компот", 50))
	s.Append(testLine("79990000001", "Салат", 120))

	removed := s.RemoveFor("79991234567")
	require.Len(t, removed, 2)

	for _, line := range s.Snapshot() {
		assert.NotEqual(t, "79991234567", line.Phone)
	}
	assert.Equal(t, 1, s.CountFor("79990000001"))

	assert.Nil(t, s.RemoveFor("79991234567"))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := openTestStore(t)
	s.Append(testLine("79991234567", "Компот", 50))

	snapshot := s.Snapshot()
	snapshot[0].Item = "изменено"

	assert.Equal(t, "Компот", s.Snapshot()[0].Item)
}

func TestUpdateComment(t *testing.T) {
	s := openTestStore(t)
	s.Append(testLine("79991234567", "Комплексный обед", 250))
	s.Append(testLine("79990000001", "Салат", 120))

	s.UpdateComment("79991234567", "без лука")

	for _, line := range s.Snapshot() {
		if line.Phone == "79991234567" {
			assert.Equal(t, "без лука", line.Comment)
		} else {
			assert.Empty(t, line.Comment)
		}
	}
}

func TestRestoreAfterRemove(t *testing.T) {
	s := openTestStore(t)
	s.Append(testLine("79991234567", "Комплексный обед", 250))

	removed := s.RemoveFor("79991234567")
	require.Len(t, removed, 1)
	require.Equal(t, 0, s.CountFor("79991234567"))

	s.Restore(removed)
	assert.Equal(t, 1, s.CountFor("79991234567"))
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := OpenPendingOrders(path, logger.New("test"))
	assert.Empty(t, s.Snapshot())

	// The store must stay writable after degrading.
	s.Append(testLine("79991234567", "Компот", 50))
	assert.Equal(t, 1, s.CountFor("79991234567"))
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	log := logger.New("test")

	s := OpenPendingOrders(path, log)
	s.Append(testLine("79991234567", "Комплексный обед", 250))

	reopened := OpenPendingOrders(path, log)
	require.Len(t, reopened.Snapshot(), 1)
	assert.Equal(t, "Комплексный обед", reopened.Snapshot()[0].Item)
}
