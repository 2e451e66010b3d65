package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/trace"
)

// ErrOrderNotFound indicates the order API has no order with the given
// number.
var ErrOrderNotFound = errors.New("order not found")

// Order is the subset of the order API response the saga needs to build a
// reservation request.
type Order struct {
	ID            int64       `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	Items         []OrderItem `json:"items"`
}

// OrderItem is one order line as served by the order API.
type OrderItem struct {
	ProductID int64  `json:"productId"`
	Sku       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// ReservationRequest is the inventory API's reserve/release body.
type ReservationRequest struct {
	OrderNumber string               `json:"orderNumber"`
	Lines       []db.ReservationLine `json:"lines"`
}

// ClientConfig bounds the collaborator HTTP calls. Retries cover transient
// failures (network errors, 5xx) of a single call; they never re-deliver a
// queue message.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// OrderClient talks to the order collaborator.
type OrderClient struct {
	baseURL    string
	client     *http.Client
	maxRetries uint64
}

func NewOrderClient(cfg ClientConfig) *OrderClient {
	return &OrderClient{
		baseURL:    cfg.BaseURL,
		client:     cfg.httpClient(),
		maxRetries: cfg.MaxRetries,
	}
}

// UpdateStatus idempotently sets the order's status. The carried trace
// context is injected into the request unmodified.
func (c *OrderClient) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("marshaling status update: %w", err)
	}
	url := fmt.Sprintf("%s/orders/%d/status", c.baseURL, orderID)
	return c.doRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		trace.Inject(ctx, req.Header)
		return c.client.Do(req)
	}, nil)
}

// GetByNumber fetches the full order, including line items. A 404 is
// reported as ErrOrderNotFound.
func (c *OrderClient) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	url := fmt.Sprintf("%s/orders/by-number/%s", c.baseURL, orderNumber)
	var order Order
	err := c.doRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		trace.Inject(ctx, req.Header)
		return c.client.Do(req)
	}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// InventoryClient talks to the inventory collaborator.
type InventoryClient struct {
	baseURL    string
	client     *http.Client
	maxRetries uint64
}

func NewInventoryClient(cfg ClientConfig) *InventoryClient {
	return &InventoryClient{
		baseURL:    cfg.BaseURL,
		client:     cfg.httpClient(),
		maxRetries: cfg.MaxRetries,
	}
}

// Reserve asks the inventory service to hold stock for every line of the
// request. A business rejection comes back as a result with Success=false;
// only transport and server failures surface as errors.
func (c *InventoryClient) Reserve(ctx context.Context, request ReservationRequest) (*db.ReservationResult, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling reservation request: %w", err)
	}
	url := c.baseURL + "/inventory/reserve"
	var result db.ReservationResult
	err = doRetry(ctx, c.maxRetries, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		trace.Inject(ctx, req.Header)
		return c.client.Do(req)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *OrderClient) doRetry(ctx context.Context, send func(context.Context) (*http.Response, error), out any) error {
	return doRetry(ctx, c.maxRetries, send, out)
}

// doRetry performs one logical HTTP call with bounded exponential backoff.
// Network errors and 5xx responses are retried; 4xx responses are
// permanent.
func doRetry(ctx context.Context, maxRetries uint64, send func(context.Context) (*http.Response, error), out any) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := send(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("collaborator returned %s", resp.Status))
		case resp.StatusCode == http.StatusNotFound:
			return ErrOrderNotFound
		case resp.StatusCode >= 400:
			return fmt.Errorf("collaborator returned %s", resp.Status)
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding collaborator response: %w", err)
		}
		return nil
	})
}
