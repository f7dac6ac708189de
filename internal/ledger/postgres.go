package ledger

import (
	"context"
	"fmt"

	"lunchbot/internal/database"
	"lunchbot/internal/models"
)

// PGLedger stores settled lines in the settlements table. All rows of one
// settlement commit in a single transaction so a partial append can never
// reach the ledger.
type PGLedger struct {
	db *database.DB
}

// NewPGLedger creates a ledger over an existing connection pool.
func NewPGLedger(db *database.DB) *PGLedger {
	return &PGLedger{db: db}
}

// Append inserts one row per settled line, atomically.
func (l *PGLedger) Append(ctx context.Context, lines []models.OrderLine) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, line := range lines {
		_, err := tx.Exec(ctx, database.InsertSettlementSQL,
			line.Phone, line.Date, line.Item, line.Price, string(line.PaymentStatus),
			line.Weekday, line.Address, line.CustomerName, line.SettlementID, line.Comment)
		if err != nil {
			return fmt.Errorf("insert settlement row: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Rows reads every settled line back, oldest first.
func (l *PGLedger) Rows(ctx context.Context) ([]models.OrderLine, error) {
	rows, err := l.db.Query(ctx, database.SelectSettlementsSQL)
	if err != nil {
		return nil, fmt.Errorf("select settlements: %w", err)
	}
	defer rows.Close()

	var out []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		var method string
		err := rows.Scan(&line.Phone, &line.Date, &line.Item, &line.Price, &method,
			&line.Weekday, &line.Address, &line.CustomerName, &line.SettlementID, &line.Comment)
		if err != nil {
			return nil, fmt.Errorf("scan settlement row: %w", err)
		}
		line.PaymentStatus = models.PaymentStatus(method)
		out = append(out, line)
	}
	return out, rows.Err()
}
