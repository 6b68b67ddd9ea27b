// Package events carries the named outcomes of command handling to
// observers such as metrics and logs. Handlers publish after the terminal
// outcome of a command is known.
package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/command"
)

// Type classifies an event
type Type string

const (
	// Tips
	TipSuccess             Type = "tip.success"
	TipInsufficientBalance Type = "tip.insufficient_balance"
	TipSelf                Type = "tip.self"
	TipInvalidAmount       Type = "tip.invalid_amount"
	TipTransferFailed      Type = "tip.transfer_failed"
	TipReplayed            Type = "tip.replayed"
	TipNotified            Type = "tip.notified"

	// Withdrawals
	WithdrawalNoAddress           Type = "withdrawal.no_address"
	WithdrawalBadAddress          Type = "withdrawal.bad_address"
	WithdrawalInvalidAmount       Type = "withdrawal.invalid_amount"
	WithdrawalInsufficientBalance Type = "withdrawal.insufficient_balance"
	WithdrawalRobotAddress        Type = "withdrawal.robot_address"
	WithdrawalDestinationMissing  Type = "withdrawal.destination_missing"
	WithdrawalRejected            Type = "withdrawal.rejected"
	WithdrawalIndeterminate       Type = "withdrawal.indeterminate"
	WithdrawalFailed              Type = "withdrawal.failed"
	WithdrawalSuccess             Type = "withdrawal.success"
	WithdrawalReplayed            Type = "withdrawal.replayed"

	// Registration
	RegistrationBadWallet     Type = "registration.bad_wallet"
	RegistrationRobotWallet   Type = "registration.robot_wallet"
	RegistrationCurrentWallet Type = "registration.current_wallet"
	RegistrationOtherUser     Type = "registration.other_user"
	RegistrationFailed        Type = "registration.failed"
	RegistrationSuccess       Type = "registration.success"

	BalanceRequest Type = "balance.request"
	InfoRequest    Type = "info.request"

	DepositSuccess Type = "deposit.success"

	NotificationFailed Type = "notification.failed"

	CommandQueued Type = "command.queued"
	QueueFlushed  Type = "queue.flushed"
)

// Event is one published outcome
type Event struct {
	Type      Type
	Command   command.Command // zero for deposits and queue events
	Amount    decimal.Decimal
	Count     int
	FirstTime bool // registration: account had no wallet before
	Timestamp time.Time
}

// Publisher is what producers depend on
type Publisher interface {
	Publish(Event)
}

// Handler receives published events
type Handler func(Event)

// Bus fans events out to subscribers synchronously
type Bus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h and returns a function removing it again
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerEntry{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.handlers {
			if e.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish stamps e and delivers it to every subscriber
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		h.handler(e)
	}
}

// Discard drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
