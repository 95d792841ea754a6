// Package relayclient calls the relay the way a browser front end would:
// four operations, each carrying the caller's key from an explicit Session.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fichaje/holded-relay/internal/model"
)

// ErrNoCredential is returned before any I/O when the session has no API key.
var ErrNoCredential = errors.New("no Holded API key in session")

// Session is everything a call needs to reach the relay.
type Session struct {
	RelayURL string
	APIKey   model.Credential
}

func (s Session) validate() error {
	if s.APIKey.Empty() {
		return ErrNoCredential
	}
	if s.RelayURL == "" {
		return errors.New("relay URL is empty")
	}
	return nil
}

// StatusError is a non-2xx answer from the relay.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error %s: %d - %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	http *http.Client
}

// New returns a Client. A nil httpClient means http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient}
}

// Employees lists every employee.
func (c *Client) Employees(ctx context.Context, s Session) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.call(ctx, s, http.MethodGet, "/api/employees", "fetching employees", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmployeeTimes returns the employee's time entries as Holded shaped them.
func (c *Client) EmployeeTimes(ctx context.Context, s Session, employeeID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, s, http.MethodGet, employeePath(employeeID, "times"), "fetching employee times", &out)
	return out, err
}

// ClockIn starts a time entry.
func (c *Client) ClockIn(ctx context.Context, s Session, employeeID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, s, http.MethodPost, employeePath(employeeID, "clockin"), "clocking in", &out)
	return out, err
}

// ClockOut closes the running time entry.
func (c *Client) ClockOut(ctx context.Context, s Session, employeeID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, s, http.MethodPost, employeePath(employeeID, "clockout"), "clocking out", &out)
	return out, err
}

func (c *Client) call(ctx context.Context, s Session, method, path, op string, out any) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.RelayURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(model.CredentialHeader, string(s.APIKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func employeePath(employeeID, action string) string {
	return "/api/employees/" + url.PathEscape(employeeID) + "/" + action
}
