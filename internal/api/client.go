package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ammar1510/mesh/internal/logger"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	log = logger.New("api")
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto sentinel errors so callers can
// use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the Mesh REST API on behalf of one signed-in user
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a new API client. token is sent as a bearer token on
// every request.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// authorize sets the headers every request carries
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out (which may be nil)
func (c *Client) do(req *http.Request, out interface{}) error {
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("%s %s failed: %v", req.Method, req.URL.Path, err)
		return err
	}
	defer resp.Body.Close()

	log.Debug("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
