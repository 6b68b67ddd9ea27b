package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

var (
	ErrDestinationNotFound = errors.New("destination account does not exist")
	ErrReferenceError      = errors.New("transaction reference error")
	ErrIndeterminate       = errors.New("submission outcome unknown")
)

// Rejection codes reported by the signing service
const (
	CodeDestinationNotFound = "DESTINATION_ACCOUNT_DOES_NOT_EXIST"
	CodeReferenceError      = "TRANSACTION_REFERENCE_ERROR"
)

// Submitter sends withdrawals from the operating account through a
// signing service that holds its secret key.
type Submitter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSubmitter creates a submitter. Callers bound each call with a context
// deadline; the client timeout only guards against a stuck connection.
func NewSubmitter(baseURL, token string) *Submitter {
	return &Submitter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Submit pays amount XLM to destination and returns the transaction hash.
// reference is sent as the idempotency key, so resubmitting the same
// withdrawal never pays twice.
func (s *Submitter) Submit(ctx context.Context, destination string, amount decimal.Decimal, reference string) (string, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", reference)
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	body := SubmitRequest{
		Destination: destination,
		Amount:      ledger.FormatAmount(amount),
	}

	data, err := do(ctx, s.httpClient, "submit", http.MethodPost, s.baseURL+"/payments", body, header)
	if err != nil {
		return "", classify(ctx, err)
	}

	var resp SubmitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrIndeterminate, err)
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("%w: empty hash", ErrIndeterminate)
	}
	return resp.Hash, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.StatusCode == http.StatusGatewayTimeout {
		return fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}

	var resp SubmitResponse
	if json.Unmarshal(apiErr.Body, &resp) == nil {
		switch resp.Code {
		case CodeDestinationNotFound:
			return ErrDestinationNotFound
		case CodeReferenceError:
			return ErrReferenceError
		}
	}
	return err
}
