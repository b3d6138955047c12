package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-livesync/internal/auth"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListPageSendsFilterAndDecodes(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(w, http.StatusOK, models.TicketPage{
			Tickets: []models.Ticket{{ID: 1, Status: models.StatusOpen}, {ID: 2, Status: models.StatusOpen, UnreadMessages: 2}},
			HasMore: true,
			Count:   40,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Auth: auth.NewAPIKeyAuth("secret")})
	filter := models.TicketFilter{
		Status:   models.StatusOpen,
		QueueIDs: []int64{3, 1},
		Search:   "printer",
		ShowAll:  true,
	}

	page, err := c.Tickets.ListPage(context.Background(), filter, 2)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, []int64{page.Tickets[0].ID, page.Tickets[1].ID})
	assert.True(t, page.HasMore)
	assert.Equal(t, 40, page.Count)

	require.NotNil(t, got)
	assert.Equal(t, "/api/v1/tickets", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "2", q.Get("pageNumber"))
	assert.Equal(t, "open", q.Get("status"))
	assert.Equal(t, "printer", q.Get("searchParam"))
	assert.Equal(t, "[1,3]", q.Get("queueIds"))
	assert.Equal(t, "true", q.Get("showAll"))
	assert.Equal(t, "secret", got.Header.Get("X-API-Key"))
	assert.NotEmpty(t, got.Header.Get("X-Request-ID"))
}

func TestListPageMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "ERR_NO_PERMISSION"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Tickets.ListPage(context.Background(), models.TicketFilter{}, 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "ERR_NO_PERMISSION", apiErr.Message)
	assert.False(t, IsRetryable(err))
}

func TestListPageFallsBackToStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Tickets.ListPage(context.Background(), models.TicketFilter{}, 1)

	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, models.TicketPage{Tickets: []models.Ticket{{ID: 5, Status: models.StatusOpen}}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RetryCount: 2, RetryWait: time.Millisecond})
	page, err := c.Tickets.ListPage(context.Background(), models.TicketFilter{}, 1)

	require.NoError(t, err)
	assert.Len(t, page.Tickets, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Tickets.ListPage(context.Background(), models.TicketFilter{}, 1)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.True(t, IsRetryable(err))
}

func TestPageQueryDefaults(t *testing.T) {
	q := PageQuery(models.TicketFilter{}, 0)

	assert.Equal(t, "1", q["pageNumber"])
	assert.Equal(t, "false", q["showAll"])
	_, hasStatus := q["status"]
	assert.False(t, hasStatus)
}
