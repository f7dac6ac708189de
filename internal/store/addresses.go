package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"lunchbot/internal/logger"
)

type addressesFile struct {
	Addresses []string `json:"addresses"`
}

// Addresses is the list of delivery addresses offered at registration.
// Administrators extend it through the admin branch.
type Addresses struct {
	mu   sync.Mutex
	path string
	list []string
	log  *logger.Logger
}

// OpenAddresses loads the address list file.
func OpenAddresses(path string, log *logger.Logger) *Addresses {
	a := &Addresses{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error("address_list_unreadable", "Address list unreadable, starting empty", "startup", err,
				map[string]interface{}{"path": path})
		}
		return a
	}

	var f addressesFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error("address_list_corrupt", "Address list corrupt, starting empty", "startup", err,
			map[string]interface{}{"path": path})
		return a
	}
	a.list = f.Addresses
	return a
}

// All returns a copy of the address list.
func (a *Addresses) All() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.list))
	copy(out, a.list)
	return out
}

// Add appends one address.
func (a *Addresses) Add(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.list = append(a.list, address)
	a.flushLocked()
}

func (a *Addresses) flushLocked() {
	data, err := json.MarshalIndent(addressesFile{Addresses: a.list}, "", "  ")
	if err != nil {
		a.log.Error("address_list_flush_failed", "Failed to encode address list", "", err, nil)
		return
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		a.log.Error("address_list_flush_failed", "Failed to write address list", "", err,
			map[string]interface{}{"path": a.path})
	}
}
