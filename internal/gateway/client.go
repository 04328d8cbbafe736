package gateway

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

	"github.com/dukerupert/dailyquestion/internal/apperr"
)

// DefaultTimeout bounds every remote call that has no configured timeout.
const DefaultTimeout = 5 * time.Second

var errNotFound = errors.New("remote resource not found")

type client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a gateway client.
type Option func(*client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the deadline applied to each individual call.
func WithTimeout(d time.Duration) Option {
	return func(cl *client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// envelope is the response wrapper used by the remote services.
type envelope[T any] struct {
	Data T `json:"data"`
}

// do sends one JSON request and decodes the enveloped response into out.
// Transport failures and 5xx/4xx answers are reported as UpstreamUnavailable;
// a 404 is reported as errNotFound.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Upstream(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		return apperr.Upstream(op, fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Upstream(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
