// Package conversation drives the per-chat finite-state flow: consent,
// registration, date and item selection, cart review, comment, payment
// method, settlement. It owns no rendering; it consumes classified events
// and emits replies for the UI gateway.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lunchbot/internal/cart"
	"lunchbot/internal/ledger"
	"lunchbot/internal/logger"
	"lunchbot/internal/menu"
	"lunchbot/internal/models"
	"lunchbot/internal/payments"
	"lunchbot/internal/store"
)

// Settler commits a customer's pending cart to the ledger.
type Settler interface {
	Settle(ctx context.Context, phone string, method models.PaymentStatus) (string, error)
}

// Broadcaster delivers an admin message to every registered customer.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

// Deps wires the machine to its collaborators.
type Deps struct {
	Customers   *store.Customers
	Addresses   *store.Addresses
	Pending     *store.PendingOrders
	Menu        menu.Provider
	Payments    payments.Provider
	Coordinator *payments.Coordinator
	Settler     Settler
	History     ledger.Reader
	ExportPath  string
	Broadcaster Broadcaster
	Logger      *logger.Logger

	// Now and CutoffHour control the ordering date window; zero values
	// mean time.Now and 20:00.
	Now        func() time.Time
	CutoffHour int
}

// Machine handles events for all chats. Per-chat handling is serialized
// on the session; cross-chat events interleave freely.
type Machine struct {
	deps Deps

	// watchCtx outlives any single event: payment watchers started from
	// a conversation keep polling after the triggering update is done.
	watchCtx context.Context

	sessions *sessions
}

// NewMachine creates the conversation machine. watchCtx bounds background
// payment watchers and should live as long as the process.
func NewMachine(watchCtx context.Context, deps Deps) *Machine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CutoffHour == 0 {
		deps.CutoffHour = 20
	}
	return &Machine{deps: deps, watchCtx: watchCtx, sessions: newSessions()}
}

// Handle processes one classified event and returns the replies to render.
func (m *Machine) Handle(ctx context.Context, ev Event) []Reply {
	sess := m.sessions.get(ev.ChatID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// A known chat id restores the session after a restart without
	// asking for the phone again.
	if sess.Phone == "" {
		if c, ok := m.deps.Customers.FindByChat(ev.ChatID); ok {
			m.bind(sess, c)
		}
	}

	// A finished payment watcher releases the session lazily.
	if sess.State == StateAwaitingCardPayment && !m.deps.Coordinator.Active(sess.Phone) {
		sess.State = StateIdle
	}

	switch ev.Kind {
	case EventStart:
		return m.handleStart(sess)
	case EventConsent:
		return m.handleConsent(sess)
	case EventSharePhone:
		return m.handleSharePhone(sess, ev.Text)
	case EventSelectAddress:
		return m.handleSelectAddress(sess, ev.Text)
	case EventEnterText:
		return m.handleText(ctx, sess, ev.Text)
	case EventSelectDate:
		return m.handleSelectDate(ctx, sess, ev.Text)
	case EventSelectItem:
		return m.handleSelectItem(ctx, sess, ev.Text)
	case EventShowCart:
		return m.handleShowCart(sess)
	case EventSkipComment:
		return m.handleComment(sess, "")
	case EventChoosePayment:
		return m.handleChoosePayment(ctx, sess, ev.Method)
	case EventClearCart:
		return m.handleClearCart(sess)
	case EventOrder, EventBack:
		return m.handleChooseDate(sess)
	case EventDone:
		return []Reply{{Text: "Спасибо за ваш заказ! Если хотите что-то ещё, выберите из меню."}}
	case EventAdminBroadcast:
		return m.handleAdminPrompt(sess, StateAdminBroadcast,
			"Введите сообщение, которое вы хотите отправить всем пользователям.")
	case EventAdminAddAddress:
		return m.handleAdminPrompt(sess, StateAdminAddAddress,
			"Введите адрес, который вы хотите добавить в список доступных для доставки 🏚.")
	case EventAdminExport:
		return m.handleAdminExport(sess)
	case EventAdminListToday:
		return m.handleAdminListToday(ctx, sess)
	}

	return []Reply{{Text: "Неизвестная команда. Пожалуйста, выберите действие из меню."}}
}

func (m *Machine) bind(sess *Session, c models.Customer) {
	sess.Phone = c.Phone
	sess.Consented = true
	if c.IsAdmin() {
		sess.State = StateAdminMenu
	} else {
		sess.State = StateIdle
	}
}

func (m *Machine) customer(sess *Session) (models.Customer, bool) {
	if sess.Phone == "" {
		return models.Customer{}, false
	}
	return m.deps.Customers.FindByPhone(sess.Phone)
}

// requireOrdering gates every ordering action: unregistered chats are
// redirected into registration, administrators are turned away.
func (m *Machine) requireOrdering(sess *Session) (models.Customer, []Reply, bool) {
	c, ok := m.customer(sess)
	if !ok {
		return models.Customer{}, m.promptRegistration(sess), false
	}
	if c.IsAdmin() {
		return models.Customer{}, []Reply{{Text: "У вас нет доступа к этой функции."}}, false
	}
	return c, nil, true
}

func (m *Machine) promptRegistration(sess *Session) []Reply {
	if !sess.Consented {
		sess.State = StateAwaitingConsent
		return []Reply{{
			Text:    "Пожалуйста, подтвердите согласие на обработку ПД \n https://telegra.ph/Soglasie-obrabotki-PD-02-10",
			Choices: [][]string{{btnConsent}},
		}}
	}
	sess.State = StateAwaitingPhone
	return []Reply{{
		Text:    "Пожалуйста, подтвердите ваш номер телефона.",
		Choices: [][]string{{btnSharePhone}},
	}}
}

func (m *Machine) handleStart(sess *Session) []Reply {
	if c, ok := m.customer(sess); ok {
		m.bind(sess, c)
		role := "Заказчик"
		if c.IsAdmin() {
			role = "Администратор"
		}
		return []Reply{{
			Text:    fmt.Sprintf("Добро пожаловать, %s! Ваша роль 🙋‍♂️: %s.", c.Name, role),
			Choices: mainKeyboard(c.Role),
		}}
	}
	return m.promptRegistration(sess)
}

func (m *Machine) handleConsent(sess *Session) []Reply {
	sess.Consented = true
	sess.State = StateAwaitingPhone
	return []Reply{{
		Text:    "Спасибо за согласие! Пожалуйста, подтвердите ваш номер телефона.",
		Choices: [][]string{{btnSharePhone}},
	}}
}

func (m *Machine) handleSharePhone(sess *Session, raw string) []Reply {
	phone := models.NormalizePhone(raw)

	if c, ok := m.deps.Customers.FindByPhone(phone); ok {
		m.bind(sess, c)
		return []Reply{{
			Text:    fmt.Sprintf("Добро пожаловать, %s!", c.Name),
			Choices: mainKeyboard(c.Role),
		}}
	}

	addresses := m.deps.Addresses.All()
	if len(addresses) == 0 {
		return []Reply{{Text: "Список адресов доставки недоступен. Свяжитесь с администратором."}}
	}

	sess.PendingPhone = phone
	sess.State = StateChoosingAddress

	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, []string{a})
	}
	return []Reply{{Text: "Выберите адрес доставки 🏘:", Choices: rows}}
}

func (m *Machine) handleSelectAddress(sess *Session, address string) []Reply {
	if sess.State != StateChoosingAddress {
		return []Reply{{Text: "Неизвестная команда. Пожалуйста, выберите действие из меню."}}
	}

	sess.PendingAddress = address
	sess.State = StateEnteringName
	return []Reply{{Text: fmt.Sprintf("Адрес доставки выбран: %s. Введите ваше имя и фамилию:", address)}}
}

// handleText routes free text by the state that asked for it.
func (m *Machine) handleText(ctx context.Context, sess *Session, text string) []Reply {
	switch sess.State {
	case StateEnteringName:
		return m.handleEnterName(sess, text)
	case StateEnteringComment:
		return m.handleComment(sess, text)
	case StateAdminBroadcast:
		return m.handleAdminBroadcastText(ctx, sess, text)
	case StateAdminAddAddress:
		return m.handleAdminAddAddressText(sess, text)
	}
	return []Reply{{Text: "Неизвестная команда. Пожалуйста, выберите действие из меню."}}
}

func (m *Machine) handleEnterName(sess *Session, name string) []Reply {
	if sess.PendingPhone == "" || sess.PendingAddress == "" {
		sess.State = StateAwaitingPhone
		return []Reply{{Text: "Ошибка регистрации. Попробуйте снова.", Choices: [][]string{{btnSharePhone}}}}
	}

	c := models.Customer{
		Phone:   sess.PendingPhone,
		Name:    name,
		Address: sess.PendingAddress,
		ChatID:  sess.ChatID,
		Role:    models.RoleCustomer,
	}
	if err := m.deps.Customers.Register(c); err != nil && !errors.Is(err, store.ErrAlreadyRegistered) {
		return []Reply{{Text: "Произошла ошибка. Пожалуйста, попробуйте снова."}}
	}

	m.bind(sess, c)
	sess.PendingPhone = ""
	sess.PendingAddress = ""

	return []Reply{{
		Text:    fmt.Sprintf("Регистрация завершена. Добро пожаловать, %s! Теперь вы можете заказывать.", name),
		Choices: mainKeyboard(models.RoleCustomer),
	}}
}

func (m *Machine) handleSelectDate(ctx context.Context, sess *Session, dateStr string) []Reply {
	_, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}

	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return []Reply{{Text: "Выберите дату из предложенных.", Choices: m.dateChoices()}}
	}

	items, err := m.deps.Menu.ItemsFor(ctx, date)
	if err != nil {
		// Provider failure aborts the selection; the cart is untouched.
		m.deps.Logger.Error("menu_fetch_failed", "Failed to load menu", "", err,
			map[string]interface{}{"date": dateStr})
		sess.State = StateChoosingDate
		return []Reply{{Text: "Не удалось загрузить меню. Попробуйте позже.", Choices: m.dateChoices()}}
	}
	if len(items) == 0 {
		sess.State = StateChoosingDate
		return []Reply{{Text: "К сожалению, на эту дату нет меню.", Choices: m.dateChoices()}}
	}

	// Re-selecting a date resets only the item choosing; pending lines
	// for other dates stay in the cart.
	sess.SelectedDate = dateStr
	sess.SelectedWeekday = models.WeekdayName(date)
	sess.State = StateChoosingItems

	return []Reply{
		{Text: fmt.Sprintf("Вы выбрали дату 📆: %s (%s)", dateStr, sess.SelectedWeekday)},
		{Text: menuText(items, dateStr, sess.SelectedWeekday)},
		{Text: "Выберите обед 🍜:", Choices: itemKeyboard(items)},
	}
}

func (m *Machine) handleSelectItem(ctx context.Context, sess *Session, selection string) []Reply {
	c, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}

	if sess.SelectedDate == "" {
		return []Reply{{Text: "Выберите дату, прежде чем заказывать обед."}}
	}

	date, err := time.Parse(models.DateLayout, sess.SelectedDate)
	if err != nil {
		sess.SelectedDate = ""
		return []Reply{{Text: "Выберите дату, прежде чем заказывать обед."}}
	}

	items, err := m.deps.Menu.ItemsFor(ctx, date)
	if err != nil {
		m.deps.Logger.Error("menu_fetch_failed", "Failed to load menu", "", err,
			map[string]interface{}{"date": sess.SelectedDate})
		return []Reply{{Text: "Не удалось загрузить меню. Попробуйте позже."}}
	}

	item, found := menu.Find(items, selection)
	if !found {
		return []Reply{{Text: fmt.Sprintf("Цена для %s не найдена в меню.", selection)}}
	}

	line := models.OrderLine{
		Phone:         c.Phone,
		Date:          sess.SelectedDate,
		Weekday:       sess.SelectedWeekday,
		Item:          item.Name,
		Price:         item.Price,
		PaymentStatus: models.PaymentUnpaid,
		Address:       c.Address,
		CustomerName:  c.Name,
	}
	if err := line.Validate(); err != nil {
		return []Reply{{Text: "Произошла ошибка. Пожалуйста, попробуйте снова."}}
	}
	m.deps.Pending.Append(line)

	m.deps.Logger.Info("order_line_added", "Order line added to pending store", "", map[string]interface{}{
		"phone": c.Phone,
		"item":  item.Name,
		"price": item.Price,
		"date":  sess.SelectedDate,
	})

	return []Reply{{
		Text:    fmt.Sprintf("Ваш выбор (%s) записан! Цена: %d рублей.", item.Name, item.Price),
		Choices: itemKeyboard(items),
	}}
}

func (m *Machine) handleShowCart(sess *Session) []Reply {
	c, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}

	view := cart.Build(m.deps.Pending.Snapshot(), c.Phone)
	if view.Empty() {
		sess.State = StateIdle
		return []Reply{{Text: "Ваша корзина пуста.", Choices: mainKeyboard(c.Role)}}
	}

	sess.State = StateEnteringComment
	return []Reply{
		{Text: cartText(view)},
		{
			Text:    "📝 Оставьте комментарий к заказу или нажмите 'Пропустить комментарий'.",
			Choices: [][]string{{btnSkipComment}},
		},
	}
}

func (m *Machine) handleComment(sess *Session, text string) []Reply {
	c, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}
	if sess.State != StateEnteringComment {
		return []Reply{{Text: "Сначала откройте корзину 🗑."}}
	}

	var confirmation string
	if text == "" {
		m.deps.Pending.UpdateComment(c.Phone, models.DefaultComment)
		confirmation = "Комментарий не добавлен. Переходим к выбору способа оплаты."
	} else {
		m.deps.Pending.UpdateComment(c.Phone, text)
		confirmation = fmt.Sprintf("✅ Комментарий сохранён: %s. Теперь выберите способ оплаты.", text)
	}

	sess.State = StateChoosingPayment
	return []Reply{
		{Text: confirmation},
		{Text: "Выберите способ оплаты:", Choices: paymentKeyboard()},
	}
}

func (m *Machine) handleChoosePayment(ctx context.Context, sess *Session, method models.PaymentStatus) []Reply {
	c, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}
	if sess.State != StateChoosingPayment {
		return []Reply{{Text: "Сначала откройте корзину 🗑."}}
	}

	switch method {
	case models.PaymentCash:
		return m.settleCash(ctx, sess, c)
	case models.PaymentCard:
		return m.startCardPayment(sess, c)
	}
	return []Reply{{Text: "Неизвестная команда. Пожалуйста, выберите один из вариантов."}}
}

func (m *Machine) settleCash(ctx context.Context, sess *Session, c models.Customer) []Reply {
	_, err := m.deps.Settler.Settle(ctx, c.Phone, models.PaymentCash)
	if errors.Is(err, ledger.ErrNoPendingOrders) {
		sess.State = StateIdle
		return []Reply{{Text: "Ваша корзина пуста, оплатить нечего.", Choices: mainKeyboard(c.Role)}}
	}
	if err != nil {
		// The settler restored the lines; the choice stays open for a retry.
		return []Reply{{Text: "Ошибка при переносе заказа в историю. Попробуйте ещё раз.", Choices: paymentKeyboard()}}
	}

	sess.State = StateIdle
	return []Reply{{
		Text:    "Оплата наличными подтверждена. Ваш заказ перенесён в историю.",
		Choices: mainKeyboard(c.Role),
	}}
}

func (m *Machine) startCardPayment(sess *Session, c models.Customer) []Reply {
	if m.deps.Coordinator.Active(c.Phone) {
		return []Reply{{Text: "Платёж уже выполняется. Дождитесь его завершения."}}
	}

	total := cart.Build(m.deps.Pending.Snapshot(), c.Phone).Total
	if total == 0 {
		sess.State = StateIdle
		return []Reply{{Text: "Ваша корзина пуста, оплатить нечего.", Choices: mainKeyboard(c.Role)}}
	}

	// The intent covers this snapshot amount; lines added afterwards are
	// not part of it.
	intent, err := m.deps.Payments.Create(m.watchCtx, total,
		fmt.Sprintf("Оплата заказа на сумму %d рублей", total))
	if err != nil {
		m.deps.Logger.Error("payment_create_failed", "Failed to create payment", "", err,
			map[string]interface{}{"phone": c.Phone, "amount": total})
		return []Reply{{Text: "Ошибка при создании платежа. Попробуйте ещё раз.", Choices: paymentKeyboard()}}
	}
	intent.Phone = c.Phone

	if err := m.deps.Coordinator.Begin(m.watchCtx, intent); err != nil {
		return []Reply{{Text: "Платёж уже выполняется. Дождитесь его завершения."}}
	}

	sess.State = StateAwaitingCardPayment
	return []Reply{{
		Text: fmt.Sprintf("Платёж создан! Перейдите по ссылке (%s) для оплаты.", intent.ConfirmationURL),
	}}
}

func (m *Machine) handleClearCart(sess *Session) []Reply {
	c, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}

	removed := m.deps.Pending.RemoveFor(c.Phone)
	sess.State = StateIdle
	if len(removed) == 0 {
		return []Reply{{Text: "Корзина пуста.", Choices: mainKeyboard(c.Role)}}
	}
	return []Reply{{Text: "Корзина успешно очищена.", Choices: mainKeyboard(c.Role)}}
}

// handleChooseDate opens date selection, both for a fresh order and for
// the back button inside item selection.
func (m *Machine) handleChooseDate(sess *Session) []Reply {
	_, redirect, ok := m.requireOrdering(sess)
	if !ok {
		return redirect
	}

	sess.State = StateChoosingDate
	return []Reply{{Text: "Выберите дату 📆:", Choices: m.dateChoices()}}
}

func (m *Machine) dateChoices() [][]string {
	return dateKeyboard(menu.OrderableDates(m.deps.Now(), m.deps.CutoffHour))
}

func (m *Machine) requireAdmin(sess *Session) (models.Customer, []Reply, bool) {
	c, ok := m.customer(sess)
	if !ok || !c.IsAdmin() {
		return models.Customer{}, []Reply{{Text: "У вас нет прав для использования этой функции."}}, false
	}
	return c, nil, true
}

func (m *Machine) handleAdminPrompt(sess *Session, next State, prompt string) []Reply {
	_, deny, ok := m.requireAdmin(sess)
	if !ok {
		return deny
	}
	sess.State = next
	return []Reply{{Text: prompt}}
}

func (m *Machine) handleAdminBroadcastText(ctx context.Context, sess *Session, text string) []Reply {
	c, deny, ok := m.requireAdmin(sess)
	if !ok {
		return deny
	}

	sess.State = StateAdminMenu
	if err := m.deps.Broadcaster.Broadcast(ctx, text); err != nil {
		m.deps.Logger.Error("broadcast_failed", "Failed to broadcast message", "", err, nil)
		return []Reply{{Text: "Не удалось отправить сообщение.", Choices: mainKeyboard(c.Role)}}
	}
	return []Reply{{Text: "Сообщение было отправлено всем пользователям.", Choices: mainKeyboard(c.Role)}}
}

func (m *Machine) handleAdminAddAddressText(sess *Session, text string) []Reply {
	c, deny, ok := m.requireAdmin(sess)
	if !ok {
		return deny
	}

	m.deps.Addresses.Add(text)
	sess.State = StateAdminMenu
	return []Reply{{
		Text:    fmt.Sprintf("Адрес '%s' был успешно добавлен.", text),
		Choices: mainKeyboard(c.Role),
	}}
}

func (m *Machine) handleAdminExport(sess *Session) []Reply {
	_, deny, ok := m.requireAdmin(sess)
	if !ok {
		return deny
	}
	if m.deps.ExportPath == "" {
		return []Reply{{Text: "Выгрузка недоступна для этого хранилища."}}
	}
	return []Reply{{Text: "Выгрузка заказов", Document: m.deps.ExportPath}}
}

func (m *Machine) handleAdminListToday(ctx context.Context, sess *Session) []Reply {
	_, deny, ok := m.requireAdmin(sess)
	if !ok {
		return deny
	}

	summary, err := ledger.SummarizeDay(ctx, m.deps.History, m.deps.Now())
	if err != nil {
		m.deps.Logger.Error("order_list_failed", "Failed to read ledger for summary", "", err, nil)
		return []Reply{{Text: "Файл с заказами не найден."}}
	}
	if summary.Empty() {
		return []Reply{{Text: "Заказов на сегодня нет."}}
	}
	return []Reply{{Text: summary.Format()}}
}
