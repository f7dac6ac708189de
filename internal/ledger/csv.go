package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"lunchbot/internal/models"
)

// CSVLedger appends settled lines to a CSV file, creating it with the
// fixed column header when absent. The file doubles as the admin export.
type CSVLedger struct {
	mu   sync.Mutex
	path string
}

// NewCSVLedger creates a CSV ledger at the given path.
func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

// Path returns the backing file path, for the admin export command.
func (l *CSVLedger) Path() string {
	return l.path
}

// Append writes one row per settled line.
func (l *CSVLedger) Append(ctx context.Context, lines []models.OrderLine) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, statErr := os.Stat(l.path)
	writeHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Columns); err != nil {
			f.Close()
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	for _, line := range lines {
		if err := w.Write(record(line)); err != nil {
			f.Close()
			return fmt.Errorf("write ledger row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	return f.Close()
}

// Rows reads every settled line back from the file. A missing file means
// an empty ledger.
func (l *CSVLedger) Rows(ctx context.Context) ([]models.OrderLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(Columns)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	rows := make([]models.OrderLine, 0, len(records)-1)
	for _, rec := range records[1:] {
		price, err := strconv.Atoi(rec[3])
		if err != nil {
			return nil, fmt.Errorf("bad price in ledger row: %w", err)
		}
		rows = append(rows, models.OrderLine{
			Phone:         rec[0],
			Date:          rec[1],
			Item:          rec[2],
			Price:         price,
			PaymentStatus: models.PaymentStatus(rec[4]),
			Weekday:       rec[5],
			Address:       rec[6],
			CustomerName:  rec[7],
			SettlementID:  rec[8],
			Comment:       rec[9],
		})
	}
	return rows, nil
}

func record(line models.OrderLine) []string {
	return []string{
		line.Phone,
		line.Date,
		line.Item,
		strconv.Itoa(line.Price),
		string(line.PaymentStatus),
		line.Weekday,
		line.Address,
		line.CustomerName,
		line.SettlementID,
		line.Comment,
	}
}
