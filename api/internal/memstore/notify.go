package memstore

import (
	"context"
	"sync"

	"facility-compliance-system/api/internal/lifecycle"
)

// Notifications records every notification in order. Err, when set, is returned from
// Create after the record has been captured.
type Notifications struct {
	mu      sync.Mutex
	records []lifecycle.NotificationRecord
	Err     error
}

func (n *Notifications) Create(_ context.Context, rec lifecycle.NotificationRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	return n.Err
}

func (n *Notifications) Records() []lifecycle.NotificationRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]lifecycle.NotificationRecord, len(n.records))
	copy(out, n.records)
	return out
}

// ForUser returns the records addressed to userID.
func (n *Notifications) ForUser(userID string) []lifecycle.NotificationRecord {
	var out []lifecycle.NotificationRecord
	for _, rec := range n.Records() {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// Locker is a process-local lifecycle.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *Locker) TryLock(_ context.Context, key string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

// ListForUser returns the newest records first, matching the postgres repository.
func (n *Notifications) ListForUser(_ context.Context, userID string, limit int) ([]lifecycle.NotificationRecord, error) {
	recs := n.ForUser(userID)
	out := make([]lifecycle.NotificationRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
