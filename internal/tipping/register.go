package tipping

import (
	"context"
	"errors"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/horizon"
	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

func (s *Service) register(ctx context.Context, cmd command.Command) (string, error) {
	addr := cmd.WalletAddress

	if !horizon.IsValidPublicKey(addr) {
		return "", fail(KindValidation, events.RegistrationBadWallet, msgInvalidWallet(addr))
	}
	if addr == s.cfg.OperatingAddress {
		return "", fail(KindValidation, events.RegistrationRobotWallet, msgRobotRegistration)
	}

	acct, err := s.ledger.GetOrCreate(ctx, cmd.Adapter, cmd.UniqueID)
	if err != nil {
		return "", s.internal(events.RegistrationFailed, err)
	}

	if acct.WalletAddress == addr {
		return "", fail(KindConflict, events.RegistrationCurrentWallet, msgCurrentWallet(addr))
	}

	owner, err := s.ledger.FindByWallet(ctx, addr)
	switch {
	case err == nil:
		s.log.Info("wallet already registered",
			"wallet", horizon.ShortAddr(addr, 4),
			"owner", owner.UniqueID,
			"requester", cmd.UniqueID,
		)
		return "", fail(KindConflict, events.RegistrationOtherUser, msgWalletTaken(addr, s.cfg.SupportContact))
	case !errors.Is(err, ledger.ErrAccountNotFound):
		return "", s.internal(events.RegistrationFailed, err)
	}

	old := acct.WalletAddress
	if _, err := s.ledger.SetWallet(ctx, acct, addr); err != nil {
		return "", s.internal(events.RegistrationFailed, err)
	}

	first := old == ""
	s.events.Publish(events.Event{Type: events.RegistrationSuccess, Command: cmd, FirstTime: first})
	if first {
		return msgRegistered(addr, s.cfg.OperatingAddress), nil
	}
	return msgWalletReplaced(old, addr), nil
}
