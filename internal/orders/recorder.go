package orders

import (
	"sync"
	"time"

	"dex-dip-bot/internal/venue"
)

// AttemptStatus is the lifecycle of one trade attempt.
type AttemptStatus string

const (
	StatusPending  AttemptStatus = "PENDING"
	StatusFilled   AttemptStatus = "FILLED"
	StatusFailed   AttemptStatus = "FAILED"
	StatusRejected AttemptStatus = "REJECTED"
)

// Attempt is one recorded trade attempt, keyed by client order id.
type Attempt struct {
	ClientOrderID string        `json:"client_order_id"`
	InstanceID    string        `json:"instance_id"`
	Side          venue.Side    `json:"side"`
	QuoteAmount   float64       `json:"quote_amount"`
	BaseQty       float64       `json:"base_qty"`
	Price         float64       `json:"price"`
	Status        AttemptStatus `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	TxRef         string        `json:"tx_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Recorder keeps an in-memory, append-once ledger of trade attempts.
// Recording the same client order id twice is a no-op, so a retried
// submission produces exactly one record. Durable history is the caller's
// concern (the database repositories persist the same records).
type Recorder struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	order    []string
}

// NewRecorder creates an empty attempt ledger.
func NewRecorder() *Recorder {
	return &Recorder{attempts: make(map[string]*Attempt)}
}

// Record stores a new attempt. Returns false when the client order id was
// already recorded; the existing record is left untouched.
func (r *Recorder) Record(a Attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[a.ClientOrderID]; exists {
		return false
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusPending
	}

	stored := a
	r.attempts[a.ClientOrderID] = &stored
	r.order = append(r.order, a.ClientOrderID)
	return true
}

// Resolve updates an attempt's terminal status. Returns false for unknown
// ids.
func (r *Recorder) Resolve(clientOrderID string, status AttemptStatus, txRef, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[clientOrderID]
	if !ok {
		return false
	}
	a.Status = status
	a.TxRef = txRef
	a.Reason = reason
	a.UpdatedAt = time.Now()
	return true
}

// Get returns a copy of one attempt.
func (r *Recorder) Get(clientOrderID string) (Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[clientOrderID]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}

// All returns copies of every attempt in insertion order.
func (r *Recorder) All() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Attempt, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.attempts[id])
	}
	return out
}

// Count returns the number of recorded attempts.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
