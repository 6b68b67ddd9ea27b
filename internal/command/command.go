package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnknownType     = errors.New("unknown command type")
	ErrMissingIdentity = errors.New("command has no adapter or source id")
)

// Type identifies a command variant
type Type string

const (
	TypeRegister Type = "register"
	TypeTip      Type = "tip"
	TypeWithdraw Type = "withdraw"
	TypeBalance  Type = "balance"
	TypeInfo     Type = "info"
)

// Valid reports whether t is one of the known variants
func (t Type) Valid() bool {
	switch t {
	case TypeRegister, TypeTip, TypeWithdraw, TypeBalance, TypeInfo:
		return true
	}
	return false
}

// Command is a platform-neutral request coming from a chat adapter.
// Variant fields are only meaningful for the matching Type.
type Command struct {
	Type     Type   `json:"type"`
	Adapter  string `json:"adapter"`
	SourceID string `json:"source_id"`
	UniqueID string `json:"unique_id"`
	Hash     string `json:"hash"`

	// Register
	WalletAddress string `json:"wallet_address,omitempty"`

	// Tip
	TargetID string `json:"target_id,omitempty"`

	// Tip, Withdraw. Raw user text, parsed by the handler.
	Amount string `json:"amount,omitempty"`

	// Withdraw, Balance
	Address string `json:"address,omitempty"`
}

func newCommand(t Type, adapter, sourceID string) Command {
	return Command{
		Type:     t,
		Adapter:  adapter,
		SourceID: sourceID,
		UniqueID: sourceID,
		Hash:     uuid.NewString(),
	}
}

// NewRegister creates a wallet registration command
func NewRegister(adapter, sourceID, walletAddress string) Command {
	c := newCommand(TypeRegister, adapter, sourceID)
	c.WalletAddress = strings.TrimSpace(walletAddress)
	return c
}

// NewTip creates a tip from sourceID to targetID
func NewTip(adapter, sourceID, targetID, amount string) Command {
	c := newCommand(TypeTip, adapter, sourceID)
	c.TargetID = targetID
	c.Amount = strings.TrimSpace(amount)
	return c
}

// NewWithdraw creates a withdrawal. An empty address means the registered wallet.
func NewWithdraw(adapter, sourceID, amount, address string) Command {
	c := newCommand(TypeWithdraw, adapter, sourceID)
	c.Amount = strings.TrimSpace(amount)
	c.Address = strings.TrimSpace(address)
	return c
}

// NewBalance creates a balance request
func NewBalance(adapter, sourceID, address string) Command {
	c := newCommand(TypeBalance, adapter, sourceID)
	c.Address = strings.TrimSpace(address)
	return c
}

// NewInfo creates an info request
func NewInfo(adapter, sourceID string) Command {
	return newCommand(TypeInfo, adapter, sourceID)
}

// Marshal encodes a command for the deferred queue
func Marshal(c Command) ([]byte, error) {
	if !c.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	return json.Marshal(c)
}

// Unmarshal decodes a queued command and checks that it can be dispatched
func Unmarshal(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("unmarshal command: %w", err)
	}
	if !c.Type.Valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	if c.Adapter == "" || c.SourceID == "" {
		return Command{}, ErrMissingIdentity
	}
	if c.UniqueID == "" {
		c.UniqueID = c.SourceID
	}
	return c, nil
}
