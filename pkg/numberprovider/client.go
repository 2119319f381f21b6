// Package numberprovider talks to an SMS-Activate style number provisioning API.
//
// All calls are GETs against a single handler URL with an `action` query parameter.
// Responses are plain text: "ACCESS_NUMBER:<id>:<number>" for a lease,
// "STATUS_OK:<code>" once a passcode arrived.
package numberprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
)

const (
	ActionGetNumber = "getNumber"
	ActionSetStatus = "setStatus"
	ActionGetStatus = "getStatus"

	// statusCancel tells the provider the number is no longer needed.
	statusCancel = "8"

	leaseMarker  = "ACCESS"
	statusOK     = "STATUS_OK"
	responseSize = 4096

	// LeaseTTLSeconds is advisory only; nothing expires a lease locally.
	LeaseTTLSeconds = 900
)

var (
	errAPIKeyRequired  = errors.New("number provider api key is required")
	errBaseURLRequired = errors.New("number provider base url is required")
)

// Lease is a number handed out by the provider.
type Lease struct {
	Number     string
	LeaseRef   string
	TTLSeconds int
}

// ResponseError carries the provider's raw reply. It is logged, never shown to buyers.
type ResponseError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Action, e.StatusCode, e.Body)
}

// Observer receives per-call latency.
type Observer interface {
	ObserveProvider(action, outcome string, duration time.Duration)
}

// Client wraps the provider handler API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
	country    string
	logg       *logger.Logger
	observer   Observer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger enables warn logs for release failures.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// WithObserver records call latency, typically into prometheus.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds the provider client from configuration.
func NewClient(cfg config.ProviderConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		return nil, errBaseURLRequired
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("parse number provider base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     apiKey,
		country:    strings.TrimSpace(cfg.Country),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Acquire leases a fresh number for the provider service code.
func (c *Client) Acquire(ctx context.Context, serviceCode string) (*Lease, error) {
	params := url.Values{}
	params.Set("service", serviceCode)
	if c.country != "" {
		params.Set("country", c.country)
	}

	status, body, err := c.call(ctx, ActionGetNumber, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "acquire number")
	}

	lease, ok := parseLease(body)
	if status != http.StatusOK || !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, &ResponseError{Action: ActionGetNumber, StatusCode: status, Body: body}, "acquire number")
	}
	return lease, nil
}

// Release tells the provider the lease is no longer needed. Failures are logged and dropped.
func (c *Client) Release(ctx context.Context, leaseRef string) {
	if strings.TrimSpace(leaseRef) == "" {
		return
	}
	params := url.Values{}
	params.Set("status", statusCancel)
	params.Set("id", leaseRef)

	// The buyer's request may already be gone; the provider should still hear about it.
	ctx = context.WithoutCancel(ctx)
	status, body, err := c.call(ctx, ActionSetStatus, params)
	if err == nil && status != http.StatusOK {
		err = &ResponseError{Action: ActionSetStatus, StatusCode: status, Body: body}
	}
	if err != nil && c.logg != nil {
		ctx = c.logg.WithLeaseRef(ctx, leaseRef)
		ctx = c.logg.WithField(ctx, "error", err.Error())
		c.logg.Warn(ctx, "provider.release.failed")
	}
}

// Poll asks the provider whether a passcode arrived for the lease.
// A nil code with a nil error means nothing has arrived yet.
func (c *Client) Poll(ctx context.Context, leaseRef string) (*string, error) {
	params := url.Values{}
	params.Set("id", leaseRef)

	status, body, err := c.call(ctx, ActionGetStatus, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "poll status")
	}
	if status != http.StatusOK {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, &ResponseError{Action: ActionGetStatus, StatusCode: status, Body: body}, "poll status")
	}
	return parseStatus(body), nil
}

func (c *Client) call(ctx context.Context, action string, params url.Values) (int, string, error) {
	started := time.Now()

	params.Set("action", action)
	params.Set("api_key", c.apiKey)
	target := *c.baseURL
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, "", fmt.Errorf("build %s request: %w", action, stripURL(err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(action, "transport_error", time.Since(started))
		return 0, "", fmt.Errorf("execute %s request: %w", action, stripURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseSize))
	if err != nil {
		c.observe(action, "transport_error", time.Since(started))
		return 0, "", fmt.Errorf("read %s response: %w", action, err)
	}

	outcome := "ok"
	if resp.StatusCode != http.StatusOK {
		outcome = "http_error"
	}
	c.observe(action, outcome, time.Since(started))
	return resp.StatusCode, strings.TrimSpace(string(raw)), nil
}

func (c *Client) observe(action, outcome string, duration time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveProvider(action, outcome, duration)
}

// stripURL drops the *url.Error wrapper, whose message embeds the request URL and
// therefore the api key.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

func parseLease(body string) (*Lease, bool) {
	if !strings.HasPrefix(body, leaseMarker) {
		return nil, false
	}
	parts := strings.Split(body, ":")
	if len(parts) < 3 {
		return nil, false
	}
	ref := strings.TrimSpace(parts[1])
	number := strings.TrimSpace(parts[2])
	if ref == "" || number == "" {
		return nil, false
	}
	return &Lease{Number: number, LeaseRef: ref, TTLSeconds: LeaseTTLSeconds}, true
}

func parseStatus(body string) *string {
	if !strings.HasPrefix(body, statusOK) {
		return nil
	}
	parts := strings.SplitN(body, ":", 2)
	if len(parts) < 2 {
		return nil
	}
	code := strings.TrimSpace(parts[1])
	if code == "" {
		return nil
	}
	return &code
}
