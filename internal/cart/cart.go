// Package cart derives a customer's cart view from a pending-order
// snapshot. Nothing here is persisted; the cart is recomputed on every
// read so it can never go stale.
package cart

import "lunchbot/internal/models"

// DateGroup is one delivery date inside a cart.
type DateGroup struct {
	Date     string
	Weekday  string
	Items    []string
	Subtotal int
}

// Cart is the derived view of one customer's pending lines.
type Cart struct {
	Phone  string
	Groups []DateGroup
	Total  int
}

// Empty reports whether the customer has nothing pending.
func (c Cart) Empty() bool {
	return len(c.Groups) == 0
}

// Build groups one customer's lines by delivery date, in first-seen order,
// and computes per-date subtotals and the grand total. An empty snapshot
// yields an empty cart.
func Build(snapshot []models.OrderLine, phone string) Cart {
	c := Cart{Phone: phone}
	index := map[string]int{}

	for _, line := range snapshot {
		if line.Phone != phone {
			continue
		}

		i, ok := index[line.Date]
		if !ok {
			i = len(c.Groups)
			index[line.Date] = i
			c.Groups = append(c.Groups, DateGroup{Date: line.Date, Weekday: line.Weekday})
		}

		c.Groups[i].Items = append(c.Groups[i].Items, line.Item)
		c.Groups[i].Subtotal += line.Price
		c.Total += line.Price
	}
	return c
}
