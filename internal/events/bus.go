// Package events is a small in-process publish/subscribe bus for wallet
// notifications (balance updates, transfer outcomes). Only orchestration
// code and the CLI publish to it; ledger, balance and transaction packages
// never depend on it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-wallet/internal/domain"
)

// Type identifies an event kind.
type Type string

const (
	TypeBalanceUpdated    Type = "balance_updated"
	TypeBalanceDegraded   Type = "balance_degraded"
	TypeTransferSubmitted Type = "transfer_submitted"
	TypeTransferFailed    Type = "transfer_failed"
	TypeRefreshFailed     Type = "refresh_failed"
)

// Event is one notification. Fields not relevant to Type are empty.
type Event struct {
	ID        uuid.UUID
	Type      Type
	Network   domain.Network
	Owner     string
	Asset     string // "SOL" or a mint address
	Amount    string
	Signature string
	Status    domain.SubmissionStatus
	Message   string // user-facing text
	At        time.Time
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(Event)
}

// Bus delivers events to every current subscriber.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uuid.UUID]Handler
	logger   *zap.Logger
	now      func() time.Time
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[uuid.UUID]Handler),
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe registers h and returns a func that removes it. The returned
// func is idempotent.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	id := uuid.New()

	b.mu.Lock()
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to all subscribers. A panicking handler is logged and
// does not prevent delivery to the others.
func (b *Bus) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", string(e.Type)),
				zap.Any("panic", r))
		}
	}()
	h(e)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Nop{}
)
