package tipping

import (
	"errors"
	"fmt"

	"github.com/suspectuso/xlm-tipbot/internal/events"
)

// Kind classifies why a command did not complete
type Kind int

const (
	KindValidation Kind = iota + 1
	KindInsufficientBalance
	KindConflict
	KindGatewayRejected
	KindGatewayIndeterminate
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindConflict:
		return "conflict"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindGatewayIndeterminate:
		return "gateway_indeterminate"
	case KindInternal:
		return "internal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Failure ends a handler early. Reply is what the requester is told and
// Event is what observers see. No ledger mutation happened unless Kind is
// KindInternal and Err says otherwise.
type Failure struct {
	Kind  Kind
	Event events.Type
	Reply string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind Kind, event events.Type, reply string) *Failure {
	return &Failure{Kind: kind, Event: event, Reply: reply}
}

// KindOf returns the failure kind carried by err, or 0
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
