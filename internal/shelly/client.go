package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// defaultTimeout applies when Config.Timeout is zero.
const defaultTimeout = 3 * time.Second

// Config addresses one device.
type Config struct {
	// Address is the device host, optionally with port (e.g. "192.168.178.186").
	Address string

	// Generation selects the wire variant.
	Generation Generation

	// Timeout bounds every request to the device.
	Timeout time.Duration
}

// client performs GET requests against one device and decodes JSON answers.
// It is shared by Meter, Dimmer and Switch.
type client struct {
	http    *resty.Client
	baseURL string
	gen     Generation
}

func newClient(cfg Config) (*client, error) {
	switch cfg.Generation {
	case Gen1, Gen2:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownGeneration, cfg.Generation)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("shelly: address is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &client{
		http:    resty.New().SetTimeout(timeout),
		baseURL: "http://" + cfg.Address,
		gen:     cfg.Generation,
	}, nil
}

// rpcError is the error body of a failed Gen2 RPC call.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// getJSON issues GET path?query and decodes the body into out.
func (c *client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrUnreachable, path, err)
	}

	if resp.IsError() {
		var rpcErr rpcError
		if json.Unmarshal(resp.Body(), &rpcErr) == nil && rpcErr.Message != "" {
			return fmt.Errorf("%w: GET %s: HTTP %d: %s (code %d)", ErrRequestFailed, path, resp.StatusCode(), rpcErr.Message, rpcErr.Code)
		}
		return fmt.Errorf("%w: GET %s: HTTP %d", ErrRequestFailed, path, resp.StatusCode())
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrMalformedResponse, path, err)
	}
	return nil
}
