package database

// Settlement ledger queries
const (
	InsertSettlementSQL = `
		INSERT INTO settlements (phone, date, item, price, payment_method, weekday, address, name, settlement_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	SelectSettlementsSQL = `
		SELECT phone, date, item, price, payment_method, weekday, address, name, settlement_id, comment
		FROM settlements
		ORDER BY id ASC`
)
