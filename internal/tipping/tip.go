package tipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const msgNoTipTarget = "I could not tell who you want to tip. Reply to their message with /tip [amount]."

func (s *Service) tip(ctx context.Context, cmd command.Command) (string, error) {
	source, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
	if err != nil {
		return "", s.internal(events.TipTransferFailed, err)
	}

	if cmd.TargetID == cmd.SourceID || cmd.TargetID == cmd.UniqueID {
		return "", fail(KindValidation, events.TipSelf, msgSelfTip)
	}
	if cmd.TargetID == "" {
		return "", fail(KindValidation, events.TipInvalidAmount, msgNoTipTarget)
	}

	amount, err := ledger.ParseAmount(cmd.Amount)
	if err != nil {
		return "", fail(KindValidation, events.TipInvalidAmount, msgInvalidTipAmount(cmd.Amount))
	}

	if _, err := s.ledger.Entry(ctx, ledger.KindTipOut, cmd.Hash); err == nil {
		s.log.Info("tip already processed", "hash", cmd.Hash)
		s.events.Publish(events.Event{Type: events.TipReplayed, Command: cmd, Amount: amount})
		return msgTipped(amount), nil
	}

	if amount.GreaterThan(source.Balance) {
		return "", fail(KindInsufficientBalance, events.TipInsufficientBalance, msgTipInsufficient(source.Balance, amount))
	}

	target, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.TargetID)
	if err != nil {
		return "", s.internal(events.TipTransferFailed, err)
	}

	err = s.ledger.Transfer(ctx, source, target, amount, cmd.Hash)
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		// Another mutation got there first; report the balance it left.
		current, gerr := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
		if gerr != nil {
			return "", s.internal(events.TipTransferFailed, gerr)
		}
		return "", fail(KindInsufficientBalance, events.TipInsufficientBalance, msgTipInsufficient(current.Balance, amount))
	case errors.Is(err, ledger.ErrDuplicateReference):
		s.events.Publish(events.Event{Type: events.TipReplayed, Command: cmd, Amount: amount})
		return msgTipped(amount), nil
	case err != nil:
		return "", s.internal(events.TipTransferFailed, fmt.Errorf("transfer: %w", err))
	}

	s.events.Publish(events.Event{Type: events.TipSuccess, Command: cmd, Amount: amount})

	if s.notify(ctx, cmd, target.UniqueID, msgTipReceived(amount, target.HasWallet())) {
		s.events.Publish(events.Event{Type: events.TipNotified, Command: cmd})
	}

	return msgTipped(amount), nil
}
