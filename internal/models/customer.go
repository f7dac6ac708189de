package models

// Role controls which branch of the conversation a customer may enter.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleAdministrator Role = "administrator"
)

// Customer is an identity record, created once at registration.
type Customer struct {
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Address string `json:"address"`
	ChatID  int64  `json:"chat_id"`
	Role    Role   `json:"role"`
}

// IsAdmin reports whether the customer is in the administrator branch.
func (c *Customer) IsAdmin() bool {
	return c.Role == RoleAdministrator
}

// NormalizePhone canonicalizes a Russian phone number to bare digits with
// the leading 7. Input it cannot make sense of is returned unchanged.
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}

	s := string(digits)
	switch {
	case len(s) == 11 && s[0] == '8':
		return "7" + s[1:]
	case len(s) == 10 && s[0] == '9':
		return "7" + s
	case len(s) == 11 && s[0] == '7':
		return s
	}
	return raw
}
