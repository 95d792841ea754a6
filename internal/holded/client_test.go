package holded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fichaje/holded-relay/internal/config"
)

// pagedUpstream serves /employees with the given page sizes and records every call.
type pagedUpstream struct {
	mu       sync.Mutex
	sizes    []int
	failPage int
	calls    []string
	keys     []string
}

func (u *pagedUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls = append(u.calls, r.URL.RawQuery)
	u.keys = append(u.keys, r.Header.Get("key"))
	u.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page == u.failPage {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "upstream exploded")
		return
	}

	size := 0
	if page >= 1 && page <= len(u.sizes) {
		size = u.sizes[page-1]
	}
	records := make([]map[string]any, 0, size)
	for i := 0; i < size; i++ {
		records = append(records, map[string]any{"id": fmt.Sprintf("p%d-%d", page, i)})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"employees": records})
}

func newTestClient(t *testing.T, h http.Handler, maxPages int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.UpstreamConfig{
		BaseURL:  srv.URL + "/api/team/v1",
		Timeout:  2 * time.Second,
		MaxPages: maxPages,
	}, nil)
}

func TestListEmployees_AggregatesPagesInOrder(t *testing.T) {
	up := &pagedUpstream{sizes: []int{50, 50, 30}}
	c := newTestClient(t, http.StripPrefix("/api/team/v1", up), 200)

	got, err := c.ListEmployees(context.Background(), "k-123")
	require.NoError(t, err)

	require.Len(t, got, 130)
	assert.Equal(t, []string{
		"page=1&perPage=50",
		"page=2&perPage=50",
		"page=3&perPage=50",
	}, up.calls)
	assert.Equal(t, []string{"k-123", "k-123", "k-123"}, up.keys)

	var first, last map[string]string
	require.NoError(t, json.Unmarshal(got[0], &first))
	require.NoError(t, json.Unmarshal(got[129], &last))
	assert.Equal(t, "p1-0", first["id"])
	assert.Equal(t, "p3-29", last["id"])

	var mid map[string]string
	require.NoError(t, json.Unmarshal(got[50], &mid))
	assert.Equal(t, "p2-0", mid["id"])
}

func TestListEmployees_EmptyFirstPage(t *testing.T) {
	up := &pagedUpstream{sizes: []int{0}}
	c := newTestClient(t, http.StripPrefix("/api/team/v1", up), 200)

	got, err := c.ListEmployees(context.Background(), "k")
	require.NoError(t, err)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Len(t, up.calls, 1)
}

func TestListEmployees_FailedPageDiscardsPartialResults(t *testing.T) {
	up := &pagedUpstream{sizes: []int{50, 50, 30}, failPage: 2}
	c := newTestClient(t, http.StripPrefix("/api/team/v1", up), 200)

	got, err := c.ListEmployees(context.Background(), "k")
	assert.Nil(t, got)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "upstream exploded", se.Body)
	assert.Equal(t, 2, se.Page)
	assert.Len(t, up.calls, 2)
}

func TestListEmployees_PageCap(t *testing.T) {
	up := &pagedUpstream{sizes: []int{50, 50, 50, 50, 50}}
	c := newTestClient(t, http.StripPrefix("/api/team/v1", up), 3)

	got, err := c.ListEmployees(context.Background(), "k")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrPageLimit)
	assert.Len(t, up.calls, 3)
}

func TestListEmployees_UnexpectedShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing field", body: `{"items":[]}`},
		{name: "null field", body: `{"employees":null}`},
		{name: "field not an array", body: `{"employees":{"id":"1"}}`},
		{name: "top level array", body: `[{"id":"1"}]`},
		{name: "null body", body: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}), 200)

			got, err := c.ListEmployees(context.Background(), "k")
			assert.Nil(t, got)

			var shape *ShapeError
			require.ErrorAs(t, err, &shape)
			assert.Equal(t, "employees", shape.Field)
			assert.Equal(t, 1, shape.Page)
		})
	}
}

func TestListEmployees_InvalidJSONIsNotAShapeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}), 200)

	_, err := c.ListEmployees(context.Background(), "k")
	require.Error(t, err)

	var shape *ShapeError
	var se *StatusError
	assert.False(t, errors.As(err, &shape))
	assert.False(t, errors.As(err, &se))
}

func TestSingleCalls_Forwarding(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) (*Response, error)
		wantMethod string
		wantPath   string
	}{
		{
			name:       "times",
			call:       func(c *Client) (*Response, error) { return c.ListTimes(context.Background(), "k-42", "42") },
			wantMethod: http.MethodGet,
			wantPath:   "/api/team/v1/employees/42/times",
		},
		{
			name:       "clock in",
			call:       func(c *Client) (*Response, error) { return c.ClockIn(context.Background(), "k-42", "42") },
			wantMethod: http.MethodPost,
			wantPath:   "/api/team/v1/employees/42/times/clockin",
		},
		{
			name:       "clock out",
			call:       func(c *Client) (*Response, error) { return c.ClockOut(context.Background(), "k-42", "42") },
			wantMethod: http.MethodPost,
			wantPath:   "/api/team/v1/employees/42/times/clockout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath, gotKey, gotType string
			var gotBody []byte
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotKey = r.Header.Get("key")
				gotType = r.Header.Get("Content-Type")
				gotBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"status":1,"id":"t1"}`)
			}), 200)

			resp, err := tt.call(c)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, "k-42", gotKey)
			assert.Equal(t, "application/json", gotType)
			assert.Empty(t, gotBody)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.JSONEq(t, `{"status":1,"id":"t1"}`, string(resp.Body))
		})
	}
}

func TestSingleCalls_UpstreamRejection(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"info":"invalid key"}`)
	}), 200)

	_, err := c.ClockIn(context.Background(), "bad", "42")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, `{"info":"invalid key"}`, se.Body)
	assert.Zero(t, se.Page)
}

func TestSingleCalls_InvalidJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "")
	}), 200)

	_, err := c.ListTimes(context.Background(), "k", "42")
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestSingleCalls_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: base, Timeout: time.Second, MaxPages: 1}, nil)
	_, err := c.ClockOut(context.Background(), "k", "42")
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestSingleCalls_ResponseSizeCap(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"at the cap", http.StatusOK, `{"a":"123456"}`, false},
		{"oversized success", http.StatusOK, `{"a":"1234567"}`, true},
		{"oversized rejection", http.StatusBadRequest, `{"info":"1234567890"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}), 200)
			c.maxBody = 14

			resp, err := c.ListTimes(context.Background(), "k", "42")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(resp.Body))
				return
			}
			assert.ErrorIs(t, err, ErrResponseTooLarge)
			var se *StatusError
			assert.False(t, errors.As(err, &se))
		})
	}
}

func TestListEmployees_OversizedPage(t *testing.T) {
	up := &pagedUpstream{sizes: []int{3}}
	c := newTestClient(t, http.StripPrefix("/api/team/v1", up), 200)
	c.maxBody = 16

	_, err := c.ListEmployees(context.Background(), "k")
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestSingleCalls_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, MaxPages: 1}, nil)

	start := time.Now()
	_, err := c.ClockIn(context.Background(), "k", "42")

	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestEmployeePath_EscapesSegment(t *testing.T) {
	assert.Equal(t, "/employees/42/times", employeePath("42", "times"))
	assert.Equal(t, "/employees/a%3Fb=c/times", employeePath("a?b=c", "times"))
}

func TestNewClient_RateLimitedCallsStillSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: time.Second, MaxPages: 1, RateLimit: 100}, nil)
	for i := 0; i < 3; i++ {
		_, err := c.ListTimes(context.Background(), "k", "1")
		require.NoError(t, err)
	}
}
