// Package fortune is the client for the fortune backend: the per-market
// detail and verification endpoints and the server-sent event stream.
package fortune

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// APIError is a non-success response from the backend. Message carries the
// backend's own wording so it can be shown to the user verbatim.
type APIError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *APIError) Error() string { return e.Message }

// Unwrap exposes the domain sentinel matching the status code, if any.
func (e *APIError) Unwrap() error { return e.err }

// Client talks to the fortune backend over HTTP.
type Client struct {
	baseURL      string
	network      string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a backend client.
//
// baseURL is the API root, e.g. "https://fortune-pipeline.up.railway.app" or
// "http://localhost:5173/api" behind a dev proxy. network is sent as the
// "network" query parameter on every request ("testnet" or "mainnet").
func NewClient(baseURL, network string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// The stream is long-lived; only the response headers are bounded.
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = timeout

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		network:      network,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Transport: streamTransport},
	}
}

// Network returns the network selector sent with every request.
func (c *Client) Network() string { return c.network }

// StreamURL returns the full URL of the event stream.
func (c *Client) StreamURL() string {
	return c.url("/event/stream")
}

// GetEventDetail requests the detail of one market. A payment-required
// answer (HTTP 402 or status "payment_required") yields the invoice variant;
// any other success yields the unlocked variant.
func (c *Client) GetEventDetail(ctx context.Context, marketID string) (domain.MarketDetail, error) {
	path := "/event/" + url.PathEscape(marketID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return domain.MarketDetail{}, fmt.Errorf("fortune: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return domain.MarketDetail{}, fmt.Errorf("fortune: get event %s: %w", marketID, err)
	}

	var resp APIDetailResponse
	decodeErr := json.Unmarshal(body, &resp)

	if status == http.StatusPaymentRequired || (isSuccess(status) && resp.Status == statusPaymentRequired) {
		if decodeErr != nil {
			return domain.MarketDetail{}, fmt.Errorf("fortune: decode invoice: %w", decodeErr)
		}
		if resp.Status != statusPaymentRequired || resp.Invoice == nil {
			return domain.MarketDetail{}, &APIError{
				StatusCode: status,
				Message:    "Payment required but no invoice was returned",
				err:        domain.ErrPaymentRequired,
			}
		}
		inv := resp.Invoice.ToDomain()
		return domain.MarketDetail{
			Kind:    domain.DetailPaymentRequired,
			Message: resp.Message,
			Invoice: &inv,
		}, nil
	}

	if err := checkHTTPStatus(status, body, "Failed to fetch event details"); err != nil {
		return domain.MarketDetail{}, err
	}
	if decodeErr != nil {
		return domain.MarketDetail{}, fmt.Errorf("fortune: decode event detail: %w", decodeErr)
	}

	result := resp.ToDomainResult()
	return domain.MarketDetail{
		Kind:    domain.DetailUnlocked,
		Message: resp.Message,
		Result:  &result,
	}, nil
}

// VerifyPayment presents a payment proof for marketID and returns the
// unlocked result on success.
func (c *Client) VerifyPayment(ctx context.Context, marketID string, proof domain.PaymentProof) (domain.UnlockedResult, error) {
	path := "/event/" + url.PathEscape(marketID)

	payload, err := json.Marshal(APIVerifyRequest{
		Reference:    proof.Reference,
		TxSignature:  proof.TxSignature,
		PayerAddress: proof.PayerAddress,
	})
	if err != nil {
		return domain.UnlockedResult{}, fmt.Errorf("fortune: marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return domain.UnlockedResult{}, fmt.Errorf("fortune: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return domain.UnlockedResult{}, fmt.Errorf("fortune: verify payment %s: %w", marketID, err)
	}
	if err := checkHTTPStatus(status, body, "Payment verification failed"); err != nil {
		return domain.UnlockedResult{}, err
	}

	var resp APIDetailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.UnlockedResult{}, fmt.Errorf("fortune: decode verify response: %w", err)
	}
	return resp.ToDomainResult(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// url joins path onto the base URL and appends the network selector.
func (c *Client) url(path string) string {
	u := c.baseURL + path
	if c.network == "" {
		return u
	}
	params := url.Values{}
	params.Set("network", c.network)
	return u + "?" + params.Encode()
}

// do executes req and returns the status code and full body.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// checkHTTPStatus turns a non-2xx response into an *APIError. The message is
// taken from the body's "message" (or "error") field, else fallback.
func checkHTTPStatus(statusCode int, body []byte, fallback string) error {
	if isSuccess(statusCode) {
		return nil
	}

	msg := fallback
	var eb apiErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Message != "":
			msg = eb.Message
		case eb.Error != "":
			msg = eb.Error
		}
	}

	apiErr := &APIError{StatusCode: statusCode, Message: msg}
	switch statusCode {
	case http.StatusNotFound:
		apiErr.err = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.err = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		apiErr.err = domain.ErrRateLimited
	case http.StatusPaymentRequired:
		apiErr.err = domain.ErrPaymentRequired
	}
	return apiErr
}

// IsAPIError reports whether err carries a backend response.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
