package conversation

import "sync"

// State is the position of one chat inside the conversation flow.
type State string

const (
	StateUnregistered    State = "unregistered"
	StateAwaitingConsent State = "awaiting_consent"
	StateAwaitingPhone   State = "awaiting_phone"
	StateChoosingAddress State = "choosing_address"
	StateEnteringName    State = "entering_name"

	StateIdle                State = "idle"
	StateChoosingDate        State = "choosing_date"
	StateChoosingItems       State = "choosing_items"
	StateEnteringComment     State = "entering_comment"
	StateChoosingPayment     State = "choosing_payment"
	StateAwaitingCardPayment State = "awaiting_card_payment"

	StateAdminMenu       State = "admin_menu"
	StateAdminBroadcast  State = "admin_broadcast"
	StateAdminAddAddress State = "admin_add_address"
)

// Session is the per-chat conversation state. One event is handled at a
// time per session; mu serializes concurrent deliveries for one chat.
type Session struct {
	mu sync.Mutex

	ChatID          int64
	State           State
	Consented       bool
	Phone           string
	PendingPhone    string
	PendingAddress  string
	SelectedDate    string
	SelectedWeekday string
}

type sessions struct {
	mu     sync.Mutex
	byChat map[int64]*Session
}

func newSessions() *sessions {
	return &sessions{byChat: map[int64]*Session{}}
}

func (s *sessions) get(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byChat[chatID]
	if !ok {
		sess = &Session{ChatID: chatID, State: StateUnregistered}
		s.byChat[chatID] = sess
	}
	return sess
}
