// Package menu fetches the published menu sheet and answers which items
// are orderable for a given delivery date.
package menu

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lunchbot/internal/models"
)

// ErrUnavailable wraps any failure to fetch or parse the menu. Callers
// abort the in-progress item selection and leave the cart untouched.
var ErrUnavailable = errors.New("menu unavailable")

// CategoryLunch is priced by category name; everything else by dish name.
const CategoryLunch = "Комплексный обед"

// Item is one orderable position for a specific date.
type Item struct {
	Category string
	Name     string
	Price    int
}

// Provider returns the items available for one delivery date.
type Provider interface {
	ItemsFor(ctx context.Context, date time.Time) ([]Item, error)
}

// SheetProvider reads the menu from a CSV export URL (a published
// spreadsheet). The sheet alternates menus by ISO-week parity and lists
// one dish per row: weekday, week parity, category, dish, price.
type SheetProvider struct {
	url    string
	client *http.Client
}

// NewSheetProvider creates a provider for the given CSV export URL.
func NewSheetProvider(url string) *SheetProvider {
	return &SheetProvider{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// ItemsFor fetches the sheet and returns the rows matching the date's
// weekday and week parity. Each call is one fetch; nothing is cached.
func (p *SheetProvider) ItemsFor(ctx context.Context, date time.Time) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: sheet has no data rows", ErrUnavailable)
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"День недели", "Неделя", "Название", "Блюдо", "Цена"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrUnavailable, required)
		}
	}

	weekday := models.WeekdayName(date)
	_, week := date.ISOWeek()
	parity := week % 2

	var items []Item
	for _, rec := range records[1:] {
		if field(rec, cols["День недели"]) != weekday {
			continue
		}
		rowParity, err := strconv.Atoi(field(rec, cols["Неделя"]))
		if err != nil || rowParity != parity {
			continue
		}
		price, err := strconv.Atoi(field(rec, cols["Цена"]))
		if err != nil {
			continue
		}
		items = append(items, Item{
			Category: field(rec, cols["Название"]),
			Name:     field(rec, cols["Блюдо"]),
			Price:    price,
		})
	}
	return items, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Find resolves a selected button label against the day's items. Complex
// lunches are selected and priced by category name; drinks and salads by
// dish name.
func Find(items []Item, selection string) (Item, bool) {
	for _, it := range items {
		if it.Category == CategoryLunch && it.Category == selection {
			return Item{Category: it.Category, Name: selection, Price: it.Price}, true
		}
	}
	for _, it := range items {
		if it.Name == selection {
			return it, true
		}
	}
	return Item{}, false
}

// OrderWindowDays is how far ahead customers may order.
const OrderWindowDays = 7

// OrderableDates returns the dates open for ordering: the next seven days,
// with today dropped once the cutoff hour has passed.
func OrderableDates(now time.Time, cutoffHour int) []time.Time {
	var dates []time.Time
	for i := 0; i < OrderWindowDays; i++ {
		day := now.AddDate(0, 0, i)
		if i == 0 && now.Hour() >= cutoffHour {
			continue
		}
		dates = append(dates, day)
	}
	return dates
}
