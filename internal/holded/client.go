// Package holded talks to the Holded team API on behalf of a caller-supplied key.
package holded

import (
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

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fichaje/holded-relay/internal/config"
	"github.com/fichaje/holded-relay/internal/model"
)

const (
	// PageSize is the largest page Holded serves for the employee listing.
	PageSize = 50

	employeesField   = "employees"
	maxResponseBytes = 10 << 20
)

// Response is a successful upstream answer, passed through untouched.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Client calls Holded. It keeps no per-request state; the limiter is the only
// value shared between requests and is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	maxPages int
	maxBody  int64
}

// NewClient builds a Client. rt may be nil, in which case http.DefaultTransport is used.
func NewClient(cfg config.UpstreamConfig, rt http.RoundTripper) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout, Transport: rt},
		limiter:  rate.NewLimiter(limit, burst),
		maxPages: maxPages,
		maxBody:  maxResponseBytes,
	}
}

// ListEmployees walks the paginated employee listing and returns every record
// in page order. Any failure discards the pages already fetched.
func (c *Client) ListEmployees(ctx context.Context, key model.Credential) ([]json.RawMessage, error) {
	employees := make([]json.RawMessage, 0)

	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: stopped after %d full pages", ErrPageLimit, c.maxPages)
		}

		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(PageSize))

		_, body, err := c.do(ctx, http.MethodGet, "/employees", q, key)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				se.Page = page
			}
			return nil, err
		}

		records, err := decodeEmployeePage(body, page)
		if err != nil {
			return nil, err
		}
		employees = append(employees, records...)

		if len(records) < PageSize {
			zerolog.Ctx(ctx).Debug().
				Int("pages", page).
				Int("employees", len(employees)).
				Msg("employee listing complete")
			return employees, nil
		}
	}
}

// ListTimes returns the time entries Holded holds for one employee.
func (c *Client) ListTimes(ctx context.Context, key model.Credential, employeeID string) (*Response, error) {
	return c.forward(ctx, http.MethodGet, employeePath(employeeID, "times"), key)
}

// ClockIn starts a time entry for the employee.
func (c *Client) ClockIn(ctx context.Context, key model.Credential, employeeID string) (*Response, error) {
	return c.forward(ctx, http.MethodPost, employeePath(employeeID, "times/clockin"), key)
}

// ClockOut closes the employee's running time entry.
func (c *Client) ClockOut(ctx context.Context, key model.Credential, employeeID string) (*Response, error) {
	return c.forward(ctx, http.MethodPost, employeePath(employeeID, "times/clockout"), key)
}

func (c *Client) forward(ctx context.Context, method, path string, key model.Credential) (*Response, error) {
	status, body, err := c.do(ctx, method, path, nil, key)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrInvalidJSON)
	}
	return &Response{StatusCode: status, Body: body}, nil
}

// do issues one upstream call with no request body and returns the status and
// body of a 2xx answer. Non-2xx answers come back as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, key model.Credential) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("waiting for upstream rate limit: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set(model.UpstreamKeyHeader, string(key))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s %s: %w", method, path, err)
	}
	if int64(len(body)) > c.maxBody {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: %w (%d bytes)", method, path, ErrResponseTooLarge, c.maxBody)
	}

	zerolog.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("holded call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.StatusCode, body, nil
}

func decodeEmployeePage(body []byte, page int) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ShapeError{Field: employeesField, Page: page}
		}
		return nil, fmt.Errorf("decoding employees page %d: %w", page, err)
	}

	raw, ok := envelope[employeesField]
	if !ok {
		return nil, &ShapeError{Field: employeesField, Page: page}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil || records == nil {
		return nil, &ShapeError{Field: employeesField, Page: page}
	}
	return records, nil
}

// employeePath interpolates the caller's id as a single escaped path segment.
func employeePath(employeeID, suffix string) string {
	return "/employees/" + url.PathEscape(employeeID) + "/" + suffix
}
