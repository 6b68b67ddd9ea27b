package horizon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var ErrAccountNotFound = errors.New("account does not exist on the network")

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tipbot_horizon_request_duration_seconds",
	Help:    "Horizon and submitter request latency",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
}, []string{"endpoint"})

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, string(e.Body))
}

// Client is a Horizon HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Horizon client allowing rps requests per second
func NewClient(baseURL string, rps float64) *Client {
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return do(ctx, c.httpClient, endpoint, http.MethodGet, c.baseURL+path, nil, nil)
}

// do performs one JSON request and returns the body of a 2xx response
func do(ctx context.Context, hc *http.Client, endpoint, method, url string, body any, header http.Header) ([]byte, error) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data}
	}

	return data, nil
}

// GetAccount returns an on-chain account
func (c *Client) GetAccount(ctx context.Context, address string) (*Account, error) {
	data, err := c.doRequest(ctx, "account", "/accounts/"+address)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &acc, nil
}

// Payments returns payment operations touching account after cursor, oldest first
func (c *Client) Payments(ctx context.Context, account, cursor string, limit int) ([]Payment, error) {
	q := url.Values{}
	q.Set("join", "transactions")
	q.Set("order", "asc")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	data, err := c.doRequest(ctx, "payments", "/accounts/"+account+"/payments?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var page PaymentsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return page.Embedded.Records, nil
}

// LatestPayment returns the newest payment operation touching account, or nil
// when it has none
func (c *Client) LatestPayment(ctx context.Context, account string) (*Payment, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", "1")

	data, err := c.doRequest(ctx, "payments", "/accounts/"+account+"/payments?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var page PaymentsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if len(page.Embedded.Records) == 0 {
		return nil, nil
	}
	return &page.Embedded.Records[0], nil
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
