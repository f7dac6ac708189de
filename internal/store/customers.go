package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

// ErrAlreadyRegistered is returned when a phone number is registered twice.
var ErrAlreadyRegistered = errors.New("customer already registered")

type customersFile struct {
	Users []models.Customer `json:"users"`
}

// Customers is the registry of registered customers, keyed by phone.
// Same degradation contract as PendingOrders: a broken file means an empty
// registry, never a crash.
type Customers struct {
	mu    sync.Mutex
	path  string
	users []models.Customer
	log   *logger.Logger
}

// OpenCustomers loads the customer registry file.
func OpenCustomers(path string, log *logger.Logger) *Customers {
	r := &Customers{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error("customer_registry_unreadable", "Customer registry unreadable, starting empty", "startup", err,
				map[string]interface{}{"path": path})
		}
		return r
	}

	var f customersFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error("customer_registry_corrupt", "Customer registry corrupt, starting empty", "startup", err,
			map[string]interface{}{"path": path})
		return r
	}
	r.users = f.Users
	return r
}

// Register adds a new customer. The phone must not be registered yet.
func (r *Customers) Register(c models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Phone == c.Phone {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, c.Phone)
		}
	}
	if c.Role == "" {
		c.Role = models.RoleCustomer
	}

	r.users = append(r.users, c)
	r.flushLocked()
	return nil
}

// FindByPhone looks a customer up by normalized phone number.
func (r *Customers) FindByPhone(phone string) (models.Customer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Phone == phone {
			return u, true
		}
	}
	return models.Customer{}, false
}

// FindByChat looks a customer up by chat identity, used to restore a
// session after a restart without asking for the phone again.
func (r *Customers) FindByChat(chatID int64) (models.Customer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.ChatID == chatID {
			return u, true
		}
	}
	return models.Customer{}, false
}

// All returns a copy of every registered customer, for broadcasts.
func (r *Customers) All() []models.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Customer, len(r.users))
	copy(out, r.users)
	return out
}

func (r *Customers) flushLocked() {
	data, err := json.MarshalIndent(customersFile{Users: r.users}, "", "  ")
	if err != nil {
		r.log.Error("customer_registry_flush_failed", "Failed to encode customer registry", "", err, nil)
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		r.log.Error("customer_registry_flush_failed", "Failed to write customer registry", "", err,
			map[string]interface{}{"path": r.path})
	}
}
