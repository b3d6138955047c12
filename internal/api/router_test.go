package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/subscription"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

type fakeSyncer struct {
	coll      ticketlist.Collection
	state     string
	loadErr   error
	filterErr error
	filter    models.TicketFilter
	search    string
	resyncs   int
}

func (f *fakeSyncer) Collection() ticketlist.Collection { return f.coll }

func (f *fakeSyncer) Status() subscription.Status {
	return subscription.Status{Tenant: "acme", State: f.state, Filter: f.filter, Size: f.coll.Len()}
}

func (f *fakeSyncer) LoadMore(context.Context) error { return f.loadErr }

func (f *fakeSyncer) SetFilter(_ context.Context, filter models.TicketFilter) error {
	f.filter = filter
	return f.filterErr
}

func (f *fakeSyncer) SetSearch(term string) error {
	f.search = term
	return nil
}

func (f *fakeSyncer) Resync(context.Context) error {
	f.resyncs++
	return nil
}

func setupTestRouter(s Syncer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics.New(reg).CollectionSize(2)
	return NewRouter(s, reg, zerolog.Nop())
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := &fakeSyncer{state: "connected"}
	r := setupTestRouter(s)

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	s.state = "disconnected"
	w = do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetCollection(t *testing.T) {
	s := &fakeSyncer{state: "connected", coll: ticketlist.NewCollection(
		models.Ticket{ID: 3, Status: models.StatusOpen},
		models.Ticket{ID: 1, Status: models.StatusOpen},
	)}
	r := setupTestRouter(s)

	w := do(r, http.MethodGet, "/api/v1/collection", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tickets []models.Ticket     `json:"tickets"`
		Status  subscription.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tickets, 2)
	assert.Equal(t, int64(3), body.Tickets[0].ID)
	assert.Equal(t, 2, body.Status.Size)
}

func TestLoadMoreErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"in flight", subscription.ErrFetchInFlight, http.StatusConflict},
		{"not started", subscription.ErrNotStarted, http.StatusConflict},
		{"upstream", &subscription.PageError{Page: 2, Err: errors.New("502")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter(&fakeSyncer{loadErr: tt.err})
			w := do(r, http.MethodPost, "/api/v1/collection/more", "")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestSetFilter(t *testing.T) {
	s := &fakeSyncer{}
	r := setupTestRouter(s)

	w := do(r, http.MethodPut, "/api/v1/filter", `{"status":"pending","queueIds":[2],"showAll":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusPending, s.filter.Status)
	assert.Equal(t, []int64{2}, s.filter.QueueIDs)

	w = do(r, http.MethodPut, "/api/v1/filter", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/v1/filter", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetSearchAndResync(t *testing.T) {
	s := &fakeSyncer{}
	r := setupTestRouter(s)

	w := do(r, http.MethodPut, "/api/v1/search", `{"term":"refund"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "refund", s.search)

	w = do(r, http.MethodPost, "/api/v1/collection/resync", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.resyncs)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupTestRouter(&fakeSyncer{})
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "collection")
}
