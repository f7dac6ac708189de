package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"lunchbot/internal/models"
)

// DaySummary counts settled dishes for one delivery date, grouped by
// delivery address, for the admin order list.
type DaySummary struct {
	Date      string
	ByAddress map[string]map[string]int
	Totals    map[string]int
}

// Empty reports whether the date has no settled orders.
func (s DaySummary) Empty() bool {
	return len(s.Totals) == 0
}

// SummarizeDay reads the ledger and tallies dishes delivered on the given
// date.
func SummarizeDay(ctx context.Context, r Reader, date time.Time) (DaySummary, error) {
	summary := DaySummary{
		Date:      date.Format(models.DateLayout),
		ByAddress: map[string]map[string]int{},
		Totals:    map[string]int{},
	}

	rows, err := r.Rows(ctx)
	if err != nil {
		return summary, fmt.Errorf("read ledger for summary: %w", err)
	}

	for _, row := range rows {
		if row.Date != summary.Date {
			continue
		}
		if summary.ByAddress[row.Address] == nil {
			summary.ByAddress[row.Address] = map[string]int{}
		}
		summary.ByAddress[row.Address][row.Item]++
		summary.Totals[row.Item]++
	}
	return summary, nil
}

// Format renders the summary as the admin-facing order list.
func (s DaySummary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Список заказов на %s:\n\n", s.Date)

	for _, address := range sortedKeys(s.ByAddress) {
		fmt.Fprintf(&b, "Адрес доставки: %s\n", address)
		dishes := s.ByAddress[address]
		for _, dish := range sortedKeys(dishes) {
			fmt.Fprintf(&b, "  - %s: %d\n", dish, dishes[dish])
		}
		b.WriteString("\n")
	}

	b.WriteString("Итого:\n")
	for _, dish := range sortedKeys(s.Totals) {
		fmt.Fprintf(&b, "  - %s: %d\n", dish, s.Totals[dish])
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
