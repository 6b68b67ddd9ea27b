package tipping

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const (
	msgNoWithdrawAddress = "You must register a wallet address before making a withdrawal, or provide a wallet address as an additional argument"
	msgRobotAddress      = "You're not allowed to send money through this interface to the tipping bot. If you'd like to tip the creators, check our repository on GitHub."
	msgRobotRegistration = "That is the tipping bot's own wallet address. Please register a public key that belongs to you."
	msgDestinationGone   = "I could not complete your request. The address you tried to withdraw from does not exist."
	msgWithdrawFailed    = "I could not complete your withdrawal right now. Please try again later."
	msgSelfTip           = "What is the sound of one tipper tipping?"
	msgRegisterHint      = "Use the /register command to register your wallet address"
	msgInternal          = "Something went wrong while processing your request. Please try again later."
)

func msgInvalidWallet(addr string) string {
	return fmt.Sprintf("%s is not a valid Public Key / wallet address", addr)
}

func msgCurrentWallet(addr string) string {
	return fmt.Sprintf("You are already using the public key `%s`", addr)
}

func msgWalletTaken(addr, support string) string {
	return fmt.Sprintf("Another user has already registered the wallet address `%s`. If you think this is a mistake, please contact %s.", addr, support)
}

func msgWalletReplaced(old, addr string) string {
	return fmt.Sprintf("Your old wallet `%s` has been replaced by `%s`", old, addr)
}

func msgRegistered(addr, operating string) string {
	return fmt.Sprintf("Successfully registered with wallet address `%s`.\n\nSend XLM deposits to `%s` to make funds available for use with the '/tip' command.", addr, operating)
}

func msgInvalidAddress(addr string) string {
	return fmt.Sprintf("`%s` is not a valid public key. Please try again with a valid public key.", addr)
}

func msgInvalidWithdrawAmount(raw string) string {
	return fmt.Sprintf("`%s` is not a valid withdrawal amount. Please try again.", raw)
}

func msgWithdrawInsufficient(amount, balance decimal.Decimal) string {
	return fmt.Sprintf("You requested to withdraw `%s XLM` but your wallet only contains `%s XLM`", amount.String(), balance.String())
}

func msgWithdrawn(amount decimal.Decimal, addr, hash string) string {
	return fmt.Sprintf("You withdrew `%s XLM` to your wallet at `%s`\n\nYour transaction hash is `%s`", amount.String(), addr, hash)
}

func msgWithdrawIndeterminate(support string) string {
	return fmt.Sprintf("Your withdrawal could not be confirmed right now. Please check your balance before trying again, or contact %s.", support)
}

func msgInvalidTipAmount(raw string) string {
	return fmt.Sprintf("`%s` is not a valid tip amount. Please try again.", raw)
}

func msgTipInsufficient(balance, amount decimal.Decimal) string {
	return fmt.Sprintf("Sorry, your tip could not be processed. Your account only contains `%s XLM` but you tried to send `%s XLM`",
		ledger.FormatAmount(balance), ledger.FormatAmount(amount))
}

func msgTipped(amount decimal.Decimal) string {
	return fmt.Sprintf("You successfully tipped `%s XLM`", ledger.FormatAmount(amount))
}

func msgTipReceived(amount decimal.Decimal, hasWallet bool) string {
	text := fmt.Sprintf("Someone tipped you `%s XLM`", ledger.FormatAmount(amount))
	if !hasWallet {
		text += "\n\nIn order to withdraw your funds, first register your public key by typing /register [your public key]\n\nYou can also tip other users using the /tip command."
	}
	return text
}

func msgBalance(acct *ledger.Account) string {
	wallet := acct.WalletAddress
	if wallet == "" {
		wallet = msgRegisterHint
	}
	return fmt.Sprintf("Your wallet address is: `%s`\nYour balance is: '%s'", wallet, acct.BalanceText())
}

func msgDeposit(amount decimal.Decimal) string {
	return fmt.Sprintf("You made a deposit of %s", ledger.FormatAmount(amount))
}

func msgInfo(acct *ledger.Account, operating string) string {
	wallet := "not registered yet, use /register [your public key]"
	if acct.HasWallet() {
		wallet = fmt.Sprintf("`%s`", acct.WalletAddress)
	}
	return fmt.Sprintf("Deposit address: `%s`\nYour wallet: %s\n\n"+
		"/tip [amount] as a reply tips the author of that message\n"+
		"/withdraw [amount] [address] sends XLM to your wallet or to the given address\n"+
		"/balance shows your balance\n"+
		"/register [public key] sets the wallet used for withdrawals",
		operating, wallet)
}
