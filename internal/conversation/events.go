package conversation

import "lunchbot/internal/models"

// EventKind names one classified user action. The UI gateway turns raw
// button presses and text into these; the machine never sees raw updates.
type EventKind string

const (
	EventStart         EventKind = "start"
	EventOrder         EventKind = "order"
	EventConsent       EventKind = "consent"
	EventSharePhone    EventKind = "share_phone"
	EventSelectAddress EventKind = "select_address"
	EventEnterText     EventKind = "enter_text"
	EventSelectDate    EventKind = "select_date"
	EventSelectItem    EventKind = "select_item"
	EventShowCart      EventKind = "show_cart"
	EventSkipComment   EventKind = "skip_comment"
	EventChoosePayment EventKind = "choose_payment"
	EventClearCart     EventKind = "clear_cart"
	EventBack          EventKind = "back"
	EventDone          EventKind = "done"

	EventAdminBroadcast  EventKind = "admin_broadcast"
	EventAdminAddAddress EventKind = "admin_add_address"
	EventAdminExport     EventKind = "admin_export"
	EventAdminListToday  EventKind = "admin_list_today"
)

// Event is one classified input driving the conversation machine.
// Text carries the selected value or free text; Method is set only for
// choose_payment.
type Event struct {
	Kind   EventKind
	ChatID int64
	Text   string
	Method models.PaymentStatus
}

// Reply is one outbound message for the UI to render. Choices are button
// rows; nil keeps the current keyboard. Document points at a file to send
// (the admin export).
type Reply struct {
	Text     string
	Choices  [][]string
	Document string
}
