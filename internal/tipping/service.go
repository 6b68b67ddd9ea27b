// Package tipping turns commands into ledger mutations, withdrawals and the
// replies sent back to the requester.
package tipping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

// Ledger is the account store. All balance changes go through Credit,
// Debit and Transfer, which are atomic per call.
type Ledger interface {
	GetOrCreate(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error)
	SetWallet(ctx context.Context, acct *ledger.Account, address string) (*ledger.Account, error)
	FindByWallet(ctx context.Context, address string) (*ledger.Account, error)
	Credit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error)
	Debit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error)
	Release(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error)
	Settle(ctx context.Context, ref, txHash string) error
	Transfer(ctx context.Context, source, target *ledger.Account, amount decimal.Decimal, ref string) error
	Entry(ctx context.Context, kind ledger.EntryKind, ref string) (*ledger.Entry, error)
}

// Gateway submits payments from the operating account
type Gateway interface {
	Submit(ctx context.Context, destination string, amount decimal.Decimal, reference string) (string, error)
}

// Messenger sends a direct message to a user
type Messenger interface {
	SendDirectMessage(ctx context.Context, uniqueID, text string) error
}

// Config holds the orchestrator settings
type Config struct {
	OperatingAddress string
	SupportContact   string
	SubmitTimeout    time.Duration
}

// Service is the command orchestrator
type Service struct {
	cfg       Config
	ledger    Ledger
	gateway   Gateway
	messenger Messenger
	events    events.Publisher
	log       *slog.Logger
}

// New creates the orchestrator
func New(cfg Config, l Ledger, gw Gateway, m Messenger, pub events.Publisher, log *slog.Logger) *Service {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		cfg:       cfg,
		ledger:    l,
		gateway:   gw,
		messenger: m,
		events:    pub,
		log:       log,
	}
}

// HandleCommand dispatches cmd to the handler for its type
func (s *Service) HandleCommand(ctx context.Context, cmd command.Command) string {
	switch cmd.Type {
	case command.TypeRegister:
		return s.HandleRegistrationRequest(ctx, cmd)
	case command.TypeTip:
		return s.ReceivePotentialTip(ctx, cmd)
	case command.TypeWithdraw:
		return s.ReceiveWithdrawalRequest(ctx, cmd)
	case command.TypeBalance:
		return s.ReceiveBalanceRequest(ctx, cmd)
	case command.TypeInfo:
		return s.ReceiveInfoRequest(ctx, cmd)
	}

	s.log.Error("unknown command type", "type", cmd.Type, "hash", cmd.Hash)
	return msgInternal
}

// HandleRegistrationRequest binds the submitted wallet to the requester
func (s *Service) HandleRegistrationRequest(ctx context.Context, cmd command.Command) string {
	reply, err := s.register(ctx, cmd)
	return s.resolve(cmd, reply, err)
}

// ReceiveWithdrawalRequest pays out to the requester's wallet or the
// address given in the command
func (s *Service) ReceiveWithdrawalRequest(ctx context.Context, cmd command.Command) string {
	reply, err := s.withdraw(ctx, cmd)
	return s.resolve(cmd, reply, err)
}

// ReceivePotentialTip moves funds between two accounts
func (s *Service) ReceivePotentialTip(ctx context.Context, cmd command.Command) string {
	reply, err := s.tip(ctx, cmd)
	return s.resolve(cmd, reply, err)
}

// ReceiveBalanceRequest reports the wallet and balance of the requester
func (s *Service) ReceiveBalanceRequest(ctx context.Context, cmd command.Command) string {
	acct, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
	if err != nil {
		return s.resolve(cmd, "", s.internal("", err))
	}

	s.events.Publish(events.Event{Type: events.BalanceRequest, Command: cmd})
	return msgBalance(acct)
}

// ReceiveInfoRequest explains how to use the bot
func (s *Service) ReceiveInfoRequest(ctx context.Context, cmd command.Command) string {
	acct, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
	if err != nil {
		return s.resolve(cmd, "", s.internal("", err))
	}

	s.events.Publish(events.Event{Type: events.InfoRequest, Command: cmd})
	return msgInfo(acct, s.cfg.OperatingAddress)
}

// OnDeposit credits an attributed on-chain payment. ref identifies the
// payment so the same deposit is never credited twice.
func (s *Service) OnDeposit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref string) error {
	_, err := s.ledger.Credit(ctx, acct, amount, ref, "deposit")
	if errors.Is(err, ledger.ErrDuplicateReference) {
		s.log.Debug("deposit already credited", "reference", ref)
		return nil
	}
	if err != nil {
		return err
	}

	s.log.Info("deposit credited",
		"adapter", acct.Adapter,
		"unique_id", acct.UniqueID,
		"amount", amount.String(),
		"reference", ref,
	)
	s.events.Publish(events.Event{Type: events.DepositSuccess, Amount: amount})
	s.notify(ctx, command.Command{Adapter: acct.Adapter, UniqueID: acct.UniqueID}, acct.UniqueID, msgDeposit(amount))
	return nil
}

func (s *Service) internal(event events.Type, err error) *Failure {
	return &Failure{Kind: KindInternal, Event: event, Reply: msgInternal, Err: err}
}

// resolve turns a handler outcome into the single reply for the requester
func (s *Service) resolve(cmd command.Command, reply string, err error) string {
	if err == nil {
		return reply
	}

	var f *Failure
	if !errors.As(err, &f) {
		f = s.internal("", err)
	}

	attrs := []any{"type", cmd.Type, "unique_id", cmd.UniqueID, "hash", cmd.Hash, "kind", f.Kind}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	switch f.Kind {
	case KindInternal:
		s.log.Error("command failed", attrs...)
	case KindGatewayRejected, KindGatewayIndeterminate:
		s.log.Warn("command rejected", attrs...)
	default:
		s.log.Debug("command rejected", attrs...)
	}

	if f.Event != "" {
		s.events.Publish(events.Event{Type: f.Event, Command: cmd})
	}
	return f.Reply
}

// notify sends a best-effort direct message. The outcome it reports on
// has already been committed.
func (s *Service) notify(ctx context.Context, cmd command.Command, uniqueID, text string) bool {
	if s.messenger == nil {
		return false
	}
	if err := s.messenger.SendDirectMessage(ctx, uniqueID, text); err != nil {
		s.log.Error("send direct message", "unique_id", uniqueID, "hash", cmd.Hash, "error", err)
		s.events.Publish(events.Event{Type: events.NotificationFailed, Command: cmd})
		return false
	}
	return true
}
