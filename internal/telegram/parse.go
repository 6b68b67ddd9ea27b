package telegram

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/xlm-tipbot/internal/command"
)

// Adapter identifies Telegram users in the ledger
const Adapter = "telegram"

// dispatch says how a parsed command is executed
type dispatch int

const (
	dispatchNow dispatch = iota
	dispatchDeferred
	dispatchConfirm
)

const (
	usageRegister = "Usage: /register [your public key]"
	usageTip      = "Reply to a message with /tip [amount], or use /tip [user id] [amount]"
	usageWithdraw = "Usage: /withdraw [amount] [address]. The address is optional once you registered a wallet."
	usageTipDevs  = "Usage: /tipdevs [amount]"
	noDevelopers  = "Tipping the developers is not available right now."
	noBotTips     = "Bots can't receive tips."
)

// usageError carries the text shown to the user
type usageError struct {
	text string
}

func (e *usageError) Error() string { return e.text }

var errNotACommand = errors.New("not a command")

// splitCommand turns "/tip@SomeBot 1.5" into "/tip" and ["1.5"]
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name), fields[1:]
}

// parseCommand builds the command for msg. developersID may be empty.
func parseCommand(msg *models.Message, developersID string) (command.Command, dispatch, error) {
	if msg == nil || msg.From == nil {
		return command.Command{}, 0, errNotACommand
	}

	name, args := splitCommand(msg.Text)
	source := strconv.FormatInt(msg.From.ID, 10)

	switch name {
	case "/start", "/info", "/help":
		return command.NewInfo(Adapter, source), dispatchNow, nil

	case "/balance":
		address := ""
		if len(args) > 0 {
			address = args[0]
		}
		return command.NewBalance(Adapter, source, address), dispatchNow, nil

	case "/register":
		if len(args) != 1 {
			return command.Command{}, 0, &usageError{usageRegister}
		}
		return command.NewRegister(Adapter, source, args[0]), dispatchConfirm, nil

	case "/tip":
		if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && len(args) == 1 {
			if reply.From.IsBot {
				return command.Command{}, 0, &usageError{noBotTips}
			}
			target := strconv.FormatInt(reply.From.ID, 10)
			return command.NewTip(Adapter, source, target, args[0]), dispatchNow, nil
		}
		if len(args) == 2 {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return command.Command{}, 0, &usageError{usageTip}
			}
			return command.NewTip(Adapter, source, args[0], args[1]), dispatchNow, nil
		}
		return command.Command{}, 0, &usageError{usageTip}

	case "/withdraw":
		switch len(args) {
		case 1:
			return command.NewWithdraw(Adapter, source, args[0], ""), dispatchDeferred, nil
		case 2:
			return command.NewWithdraw(Adapter, source, args[0], args[1]), dispatchDeferred, nil
		}
		return command.Command{}, 0, &usageError{usageWithdraw}

	case "/tipdevs":
		if developersID == "" {
			return command.Command{}, 0, &usageError{noDevelopers}
		}
		if len(args) != 1 {
			return command.Command{}, 0, &usageError{usageTipDevs}
		}
		return command.NewTip(Adapter, source, developersID, args[0]), dispatchDeferred, nil
	}

	return command.Command{}, 0, errNotACommand
}
