// Package testutil provides containers, an API client and contract
// validation for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Client calls the API under test. When a validator and a *testing.T are
// set, every request and response is checked against the API document.
type Client struct {
	BaseURL     string
	Token       string            // bearer token for admin endpoints
	Headers     map[string]string // extra headers such as the cron secret
	HTTPClient  *http.Client
	Validator   *OpenAPIValidator
	ValidateAPI bool
	t           *testing.T
}

// NewClient creates a client without contract validation.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// NewClientWithValidation creates a validating client bound to t.
func NewClientWithValidation(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClientWithValidator(baseURL, NewOpenAPIValidator(t))
	c.t = t
	return c
}

// NewClientWithValidator creates a validating client from a preloaded
// validator. Call SetT before use.
func NewClientWithValidator(baseURL string, validator *OpenAPIValidator) *Client {
	c := NewClient(baseURL)
	c.Validator = validator
	c.ValidateAPI = true
	return c
}

// SetT binds the client to the running test.
func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// WithoutValidation returns a copy that skips contract checks, for
// requests that deliberately break the contract.
func (c *Client) WithoutValidation() *Client {
	clone := c.clone()
	clone.ValidateAPI = false
	return clone
}

// WithToken returns a copy sending a bearer token.
func (c *Client) WithToken(token string) *Client {
	clone := c.clone()
	clone.Token = token
	return clone
}

// WithHeader returns a copy sending an extra header.
func (c *Client) WithHeader(name, value string) *Client {
	clone := c.clone()
	clone.Headers[name] = value
	return clone
}

func (c *Client) clone() *Client {
	clone := *c
	clone.Headers = make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		clone.Headers[k] = v
	}
	return &clone
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, "", nil)
}

// POST sends body as JSON. A nil body sends no payload.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	if body == nil {
		return c.do(http.MethodPost, path, "", nil)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.do(http.MethodPost, path, contentTypeJSON, payload)
}

// PostForm sends a form-encoded POST, as mail clients do for one-click
// unsubscribe.
func (c *Client) PostForm(path string, form url.Values) (*http.Response, error) {
	return c.do(http.MethodPost, path, contentTypeForm, []byte(form.Encode()))
}

func (c *Client) newRequest(method, path, contentType string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) do(method, path, contentType string, payload []byte) (*http.Response, error) {
	req, err := c.newRequest(method, path, contentType, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.ValidateAPI && c.Validator != nil && c.t != nil {
		// The sent request's body is drained; validate against a fresh copy.
		check, err := c.newRequest(method, path, contentType, payload)
		if err != nil {
			return nil, err
		}
		c.Validator.ValidateRequest(c.t, check)
		c.Validator.ValidateResponse(c.t, check, resp)
	}

	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
