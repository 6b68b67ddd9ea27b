package tipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/horizon"
	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

// withdraw runs the guards in order, then holds the amount before the
// gateway is asked to pay. The hold is settled with the tx hash once the
// payment is confirmed and released when it is not. The command hash is the
// hold's reference, so a redelivered command replays its receipt or resumes
// its own hold instead of paying again.
func (s *Service) withdraw(ctx context.Context, cmd command.Command) (string, error) {
	acct, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
	if err != nil {
		return "", s.internal(events.WithdrawalFailed, err)
	}

	dest := cmd.Address
	if dest == "" {
		dest = acct.WalletAddress
	}
	if dest == "" {
		return "", fail(KindValidation, events.WithdrawalNoAddress, msgNoWithdrawAddress)
	}
	if !horizon.IsValidPublicKey(dest) {
		return "", fail(KindValidation, events.WithdrawalBadAddress, msgInvalidAddress(dest))
	}

	amount, err := ledger.ParseAmount(cmd.Amount)
	if err != nil {
		return "", fail(KindValidation, events.WithdrawalInvalidAmount, msgInvalidWithdrawAmount(cmd.Amount))
	}

	held, err := s.heldWithdrawal(ctx, cmd)
	if err != nil {
		return "", err
	}
	if held != nil && held.Memo != "" {
		s.log.Info("withdrawal already processed", "hash", cmd.Hash, "tx_hash", held.Memo)
		s.events.Publish(events.Event{Type: events.WithdrawalReplayed, Command: cmd})
		return msgWithdrawn(held.Delta.Neg(), dest, held.Memo), nil
	}

	if held == nil {
		if amount.GreaterThan(acct.Balance) {
			return "", fail(KindInsufficientBalance, events.WithdrawalInsufficientBalance, msgWithdrawInsufficient(amount, acct.Balance))
		}
		if dest == s.cfg.OperatingAddress {
			return "", fail(KindValidation, events.WithdrawalRobotAddress, msgRobotAddress)
		}
		if err := s.hold(ctx, cmd, acct, amount); err != nil {
			return "", err
		}
	} else {
		// an earlier run held the funds and stopped before the outcome was known
		s.log.Warn("resuming held withdrawal", "hash", cmd.Hash, "unique_id", cmd.UniqueID)
		amount = held.Delta.Neg()
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	hash, err := s.gateway.Submit(submitCtx, dest, amount, cmd.Hash)
	cancel()
	if err != nil {
		failure := s.gatewayFailure(err)
		if _, rerr := s.ledger.Release(ctx, acct, amount, cmd.Hash, string(failure.Event)); rerr != nil {
			s.log.Error("release withdrawal hold",
				"unique_id", cmd.UniqueID,
				"hash", cmd.Hash,
				"amount", amount.String(),
				"error", rerr,
			)
			return "", s.internal(events.WithdrawalFailed, fmt.Errorf("release hold: %w", rerr))
		}
		return "", failure
	}

	if err := s.ledger.Settle(ctx, cmd.Hash, hash); err != nil {
		// funds are already held, only the receipt is missing
		s.log.Error("settle withdrawal",
			"unique_id", cmd.UniqueID,
			"hash", cmd.Hash,
			"tx_hash", hash,
			"error", err,
		)
	}

	s.log.Info("withdrawal completed",
		"unique_id", cmd.UniqueID,
		"destination", horizon.ShortAddr(dest, 4),
		"amount", amount.String(),
		"tx_hash", hash,
	)
	s.events.Publish(events.Event{Type: events.WithdrawalSuccess, Command: cmd, Amount: amount})
	return msgWithdrawn(amount, dest, hash), nil
}

// heldWithdrawal returns the unreleased hold written for cmd, or nil
func (s *Service) heldWithdrawal(ctx context.Context, cmd command.Command) (*ledger.Entry, error) {
	held, err := s.ledger.Entry(ctx, ledger.KindWithdrawal, cmd.Hash)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.internal(events.WithdrawalFailed, err)
	}

	_, err = s.ledger.Entry(ctx, ledger.KindRelease, cmd.Hash)
	if err == nil {
		// already failed once; the reference can't be held again
		return nil, fail(KindGatewayIndeterminate, events.WithdrawalFailed, msgWithdrawFailed)
	}
	if !errors.Is(err, ledger.ErrEntryNotFound) {
		return nil, s.internal(events.WithdrawalFailed, err)
	}
	return held, nil
}

// hold takes amount out of the balance before anything is submitted, so a
// tip racing the withdrawal can't spend the same funds
func (s *Service) hold(ctx context.Context, cmd command.Command, acct *ledger.Account, amount decimal.Decimal) error {
	_, err := s.ledger.Debit(ctx, acct, amount, cmd.Hash, "")
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		balance := acct.Balance
		if current, rerr := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID); rerr == nil {
			balance = current.Balance
		}
		return fail(KindInsufficientBalance, events.WithdrawalInsufficientBalance, msgWithdrawInsufficient(amount, balance))
	}
	return s.internal(events.WithdrawalFailed, err)
}

func (s *Service) gatewayFailure(err error) *Failure {
	switch {
	case errors.Is(err, horizon.ErrDestinationNotFound):
		return &Failure{Kind: KindGatewayRejected, Event: events.WithdrawalDestinationMissing, Reply: msgDestinationGone, Err: err}
	case errors.Is(err, horizon.ErrReferenceError):
		return &Failure{Kind: KindGatewayRejected, Event: events.WithdrawalRejected, Reply: msgRobotAddress, Err: err}
	case errors.Is(err, horizon.ErrIndeterminate), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindGatewayIndeterminate, Event: events.WithdrawalIndeterminate, Reply: msgWithdrawIndeterminate(s.cfg.SupportContact), Err: err}
	}
	return &Failure{Kind: KindGatewayIndeterminate, Event: events.WithdrawalFailed, Reply: msgWithdrawFailed, Err: err}
}
