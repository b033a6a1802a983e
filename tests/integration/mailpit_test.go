//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads delivered mail through the Mailpit REST API.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a client for the API at host:port.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v1", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a delivered message. Text and HTML are only filled by
// GetMessageByID.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
	HTML    string           `json:"HTML"`
}

// MailpitAddress is one mailbox.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
	Total    int              `json:"messages_count"`
}

func (c *MailpitClient) call(method, path string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetMessages lists the inbox, newest first.
func (c *MailpitClient) GetMessages() ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.call(http.MethodGet, "/messages", &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// GetMessageByID returns a message with decoded text and HTML bodies.
func (c *MailpitClient) GetMessageByID(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.call(http.MethodGet, "/message/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHeaders returns the raw headers of a message.
func (c *MailpitClient) GetHeaders(id string) (map[string][]string, error) {
	var headers map[string][]string
	if err := c.call(http.MethodGet, "/message/"+url.PathEscape(id)+"/headers", &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// SearchByRecipient lists messages addressed to email.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.call(http.MethodGet, "/search?query="+url.QueryEscape("to:"+email), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// DeleteAllMessages empties the inbox.
func (c *MailpitClient) DeleteAllMessages() error {
	return c.call(http.MethodDelete, "/messages", nil)
}

// MessageCount returns the number of messages in the inbox.
func (c *MailpitClient) MessageCount() (int, error) {
	messages, err := c.GetMessages()
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// WaitForMessages polls until at least count messages arrived or timeout
// passes.
func (c *MailpitClient) WaitForMessages(count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	var (
		messages []MailpitMessage
		lastErr  error
	)
	for {
		messages, lastErr = c.GetMessages()
		if lastErr == nil && len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("wait for %d messages: %w", count, lastErr)
	}
	return messages, fmt.Errorf("wait for %d messages: got %d", count, len(messages))
}
