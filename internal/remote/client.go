// Package remote mirrors device state to a Firebase-style realtime database
// over its REST interface.
package remote

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

	"github.com/sony/gobreaker"

	"github.com/ayusman/mudra/internal/monitoring"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("remote store unavailable")

// Defaults for the breaker and HTTP client.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the database root, e.g. https://example.firebaseio.com.
	BaseURL string
	// AuthToken, if set, is passed as the auth query parameter.
	AuthToken string
	// Timeout bounds a single request.
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
}

// Client reads and writes device keys ("led1".."led4") under /devices.
type Client struct {
	base string
	auth string
	http *http.Client
	cb   *gobreaker.CircuitBreaker
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-devices",
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			monitoring.Logf("remote: breaker %s %s -> %s", name, from, to)
		},
	})

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		auth: cfg.AuthToken,
		http: httpClient,
		cb:   cb,
	}, nil
}

// Key returns the remote key for a device ID.
func Key(id int) string {
	return "led" + strconv.Itoa(id)
}

// Fetch returns the device states stored remotely. Keys that do not parse as
// led<N> are ignored.
func (c *Client) Fetch(ctx context.Context) (map[int]bool, error) {
	var raw map[string]bool
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, http.MethodGet, "/devices.json", nil, &raw)
	})
	if err != nil {
		return nil, c.wrap(err)
	}

	out := make(map[int]bool, len(raw))
	for key, on := range raw {
		if !strings.HasPrefix(key, "led") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(key, "led"))
		if err != nil {
			continue
		}
		out[id] = on
	}
	return out, nil
}

// Put writes one device state.
func (c *Client) Put(ctx context.Context, id int, on bool) error {
	body, _ := json.Marshal(on)
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, http.MethodPut, "/devices/"+Key(id)+".json", body, nil)
	})
	return c.wrap(err)
}

// State reports the breaker state name ("closed", "open", "half-open").
func (c *Client) State() string {
	return c.cb.State().String()
}

func (c *Client) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	target := c.base + path
	if c.auth != "" {
		target += "?auth=" + url.QueryEscape(c.auth)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	// Firebase returns null for a missing path.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
