package models

import (
	"fmt"
	"time"
)

// PaymentStatus represents how (or whether) an order line was paid.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentCash   PaymentStatus = "cash"
	PaymentCard   PaymentStatus = "card"
)

// DateLayout is the delivery-date format used everywhere: buttons, the
// pending store and the ledger.
const DateLayout = "02.01.2006"

// DefaultComment is stamped on settled lines whose customer left no comment.
const DefaultComment = "Без комментария"

// OrderLine is one selected dish or drink for one delivery date.
// Lines live in the pending store until they are settled or cleared.
type OrderLine struct {
	Phone         string        `json:"phone"`
	Date          string        `json:"date"`
	Weekday       string        `json:"weekday"`
	Item          string        `json:"item"`
	Price         int           `json:"price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Address       string        `json:"address"`
	CustomerName  string        `json:"customer_name"`
	Comment       string        `json:"comment,omitempty"`
	SettlementID  string        `json:"settlement_id,omitempty"`
}

// Validate checks the fields that must hold for any line entering the
// pending store.
func (l *OrderLine) Validate() error {
	if l.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if l.Item == "" {
		return fmt.Errorf("item is required")
	}
	if l.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if _, err := time.Parse(DateLayout, l.Date); err != nil {
		return fmt.Errorf("date must be in DD.MM.YYYY format: %w", err)
	}
	return nil
}

var weekdayNames = [7]string{
	"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье",
}

// WeekdayName returns the Russian weekday label for a date, Monday first.
func WeekdayName(t time.Time) string {
	return weekdayNames[(int(t.Weekday())+6)%7]
}
