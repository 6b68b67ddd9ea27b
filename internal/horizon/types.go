package horizon

import "time"

// Account is the subset of a Horizon account record we read
type Account struct {
	ID       string    `json:"id"`
	Sequence string    `json:"sequence"`
	Balances []Balance `json:"balances"`
}

// Balance is one asset line of an account
type Balance struct {
	Balance   string `json:"balance"`
	AssetType string `json:"asset_type"`
}

// NativeBalance returns the XLM balance, or "" when none is listed
func (a *Account) NativeBalance() string {
	for _, b := range a.Balances {
		if b.AssetType == "native" {
			return b.Balance
		}
	}
	return ""
}

// Payment is a payment-like operation. Horizon reports create_account and
// payment with different field names.
type Payment struct {
	ID                    string       `json:"id"`
	PagingToken           string       `json:"paging_token"`
	Type                  string       `json:"type"`
	TransactionSuccessful bool         `json:"transaction_successful"`
	TransactionHash       string       `json:"transaction_hash"`
	CreatedAt             time.Time    `json:"created_at"`
	Transaction           *Transaction `json:"transaction,omitempty"`

	// payment
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	AssetType string `json:"asset_type,omitempty"`
	Amount    string `json:"amount,omitempty"`

	// create_account
	Funder          string `json:"funder,omitempty"`
	Account         string `json:"account,omitempty"`
	StartingBalance string `json:"starting_balance,omitempty"`
}

// Native returns sender, receiver and amount when p moves XLM
func (p *Payment) Native() (from, to, amount string, ok bool) {
	switch p.Type {
	case "payment":
		if p.AssetType != "native" {
			return "", "", "", false
		}
		return p.From, p.To, p.Amount, true
	case "create_account":
		return p.Funder, p.Account, p.StartingBalance, true
	}
	return "", "", "", false
}

// Memo returns the text memo of the enclosing transaction
func (p *Payment) Memo() string {
	if p.Transaction == nil || p.Transaction.MemoType != "text" {
		return ""
	}
	return p.Transaction.Memo
}

// Transaction is joined into payments with join=transactions
type Transaction struct {
	Hash     string `json:"hash"`
	MemoType string `json:"memo_type"`
	Memo     string `json:"memo,omitempty"`
}

// PaymentsPage is the response from the payments endpoint
type PaymentsPage struct {
	Embedded struct {
		Records []Payment `json:"records"`
	} `json:"_embedded"`
}

// SubmitRequest is sent to the signing service
type SubmitRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// SubmitResponse is the signing service reply. Code is set on failures.
type SubmitResponse struct {
	Hash    string `json:"hash,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
