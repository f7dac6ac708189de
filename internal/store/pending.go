package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

// PendingOrders is the shared collection of not-yet-settled order lines.
// Every operation runs as a critical section on one mutex and callers only
// ever see copies; the raw slice never leaves the store.
//
// The backing file is best-effort: an unreadable or corrupt file means the
// store starts empty with a warning, and a failed flush keeps the in-memory
// state authoritative. The one place loss is unacceptable, settlement, has
// its own compensation path (see internal/ledger).
type PendingOrders struct {
	mu    sync.Mutex
	path  string
	lines []models.OrderLine
	log   *logger.Logger
}

// OpenPendingOrders loads the pending-order file, degrading to an empty
// store if the file is missing, unreadable or corrupt.
func OpenPendingOrders(path string, log *logger.Logger) *PendingOrders {
	s := &PendingOrders{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error("pending_store_unreadable", "Pending orders file unreadable, starting empty", "startup", err,
				map[string]interface{}{"path": path})
		}
		return s
	}

	if err := json.Unmarshal(data, &s.lines); err != nil {
		log.Error("pending_store_corrupt", "Pending orders file corrupt, starting empty", "startup", err,
			map[string]interface{}{"path": path})
		s.lines = nil
	}
	return s
}

// Append adds one line to the store.
func (s *PendingOrders) Append(line models.OrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = append(s.lines, line)
	s.flushLocked()
}

// Snapshot returns a point-in-time copy of all pending lines.
func (s *PendingOrders) Snapshot() []models.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]models.OrderLine, len(s.lines))
	copy(snapshot, s.lines)
	return snapshot
}

// RemoveFor atomically detaches and returns all lines for one customer.
// Returns nil when the customer has no pending lines.
func (s *PendingOrders) RemoveFor(phone string) []models.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed, kept []models.OrderLine
	for _, line := range s.lines {
		if line.Phone == phone {
			removed = append(removed, line)
		} else {
			kept = append(kept, line)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	s.lines = kept
	s.flushLocked()
	return removed
}

// Restore puts previously removed lines back. Used by settlement when the
// ledger append fails after the lines were detached.
func (s *PendingOrders) Restore(lines []models.OrderLine) {
	if len(lines) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = append(s.lines, lines...)
	s.flushLocked()
}

// UpdateComment sets the comment on all currently pending lines for one
// customer.
func (s *PendingOrders) UpdateComment(phone, comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.lines {
		if s.lines[i].Phone == phone {
			s.lines[i].Comment = comment
			changed = true
		}
	}
	if changed {
		s.flushLocked()
	}
}

// CountFor returns how many lines one customer has pending.
func (s *PendingOrders) CountFor(phone string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, line := range s.lines {
		if line.Phone == phone {
			n++
		}
	}
	return n
}

func (s *PendingOrders) flushLocked() {
	data, err := json.MarshalIndent(s.lines, "", "  ")
	if err != nil {
		s.log.Error("pending_store_flush_failed", "Failed to encode pending orders", "", err, nil)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Error("pending_store_flush_failed", "Failed to write pending orders file", "", err,
			map[string]interface{}{"path": s.path})
	}
}
