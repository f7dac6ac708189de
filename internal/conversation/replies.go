package conversation

import (
	"fmt"
	"strings"
	"time"

	"lunchbot/internal/cart"
	"lunchbot/internal/menu"
	"lunchbot/internal/models"
)

// Button labels the UI renders. The gateway classifies presses of these
// back into events, so the texts here and the gateway mapping go together.
const (
	btnOrder       = "Сделать заказ 🍴"
	btnCart        = "Корзина 🗑"
	btnBack        = "Назад 🔙"
	btnDone        = "Нет, спасибо"
	btnSkipComment = "Пропустить комментарий"
	btnPayCard     = "Оплатить картой💳"
	btnPayCash     = "Оплатить наличными"
	btnConsent     = "Я согласен ✔"
	btnSharePhone  = "Подтвердить номер телефона"

	btnAdminList      = "Список заказов"
	btnAdminBroadcast = "Сообщить всем"
	btnAdminAddress   = "Добавить адрес доставки"
	btnAdminExport    = "Выгрузка заказов"
)

func mainKeyboard(role models.Role) [][]string {
	if role == models.RoleAdministrator {
		return [][]string{
			{btnAdminList, btnAdminBroadcast},
			{btnAdminAddress, btnAdminExport},
		}
	}
	return [][]string{{btnOrder, btnCart}}
}

func paymentKeyboard() [][]string {
	return [][]string{{btnPayCard}, {btnPayCash}, {btnBack}}
}

func dateKeyboard(dates []time.Time) [][]string {
	rows := make([][]string, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, []string{fmt.Sprintf("%s (%s)", d.Format(models.DateLayout), models.WeekdayName(d))})
	}
	return rows
}

// itemKeyboard groups the day's items the way the menu sheet does: one
// row per category, complex lunches by category name, the rest by dish.
func itemKeyboard(items []menu.Item) [][]string {
	var lunches, other []string
	seenLunch := false
	seenDish := map[string]bool{}

	for _, it := range items {
		if it.Category == menu.CategoryLunch {
			if !seenLunch {
				lunches = append(lunches, it.Category)
				seenLunch = true
			}
			continue
		}
		if !seenDish[it.Name] {
			other = append(other, it.Name)
			seenDish[it.Name] = true
		}
	}

	var rows [][]string
	if len(lunches) > 0 {
		rows = append(rows, lunches)
	}
	for _, name := range other {
		rows = append(rows, []string{name})
	}
	rows = append(rows, []string{btnDone}, []string{btnBack}, []string{btnCart})
	return rows
}

func menuText(items []menu.Item, date, weekday string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Меню на %s (%s)\n\n", date, weekday)

	type group struct {
		price  int
		dishes []string
	}
	order := []string{}
	groups := map[string]*group{}
	for _, it := range items {
		g, ok := groups[it.Category]
		if !ok {
			g = &group{price: it.Price}
			groups[it.Category] = g
			order = append(order, it.Category)
		}
		g.dishes = append(g.dishes, it.Name)
	}

	for _, category := range order {
		g := groups[category]
		fmt.Fprintf(&b, "*%s* (%d рублей):\n", category, g.price)
		for i, dish := range g.dishes {
			fmt.Fprintf(&b, "%d. %s\n", i+1, dish)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cartText(c cart.Cart) string {
	var b strings.Builder
	b.WriteString("🛒 *Ваша корзина:*\n\n")
	for _, g := range c.Groups {
		fmt.Fprintf(&b, "📅 *Дата*: %s (%s)\n", g.Date, g.Weekday)
		fmt.Fprintf(&b, "🍽 *Состав заказа*: %s\n", strings.Join(g.Items, ", "))
		fmt.Fprintf(&b, "💰 *Цена*: %d рублей\n\n", g.Subtotal)
	}
	fmt.Fprintf(&b, "💵 *Общая сумма*: %d рублей", c.Total)
	return b.String()
}
