// Package api serves a small HTTP surface for inspecting and steering a
// running synchronizer.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/channel"
	"github.com/gotrs-io/gotrs-livesync/internal/middleware"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/subscription"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

// Syncer is the part of *subscription.Manager the API drives.
type Syncer interface {
	Collection() ticketlist.Collection
	Status() subscription.Status
	LoadMore(ctx context.Context) error
	SetFilter(ctx context.Context, f models.TicketFilter) error
	SetSearch(term string) error
	Resync(ctx context.Context) error
}

// Handler serves the status API.
type Handler struct {
	syncer Syncer
	logger zerolog.Logger
}

// NewRouter builds the gin engine. gatherer may be nil to omit /metrics.
func NewRouter(s Syncer, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	h := &Handler{syncer: s, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	r.GET("/healthz", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/collection", h.GetCollection)
		v1.POST("/collection/more", h.LoadMore)
		v1.POST("/collection/resync", h.Resync)
		v1.PUT("/filter", h.SetFilter)
		v1.PUT("/search", h.SetSearch)
	}
	return r
}

// Health reports 200 while the channel is connected and 503 otherwise.
func (h *Handler) Health(c *gin.Context) {
	st := h.syncer.Status()
	code := http.StatusOK
	if st.State != channel.StateConnected.String() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": st.State,
		"tenant": st.Tenant,
	})
}

// GetCollection returns the current tickets in display order.
func (h *Handler) GetCollection(c *gin.Context) {
	coll := h.syncer.Collection()
	c.JSON(http.StatusOK, gin.H{
		"tickets": coll.Tickets(),
		"status":  h.syncer.Status(),
	})
}

func (h *Handler) LoadMore(c *gin.Context) {
	if err := h.syncer.LoadMore(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.syncer.Status())
}

func (h *Handler) Resync(c *gin.Context) {
	if err := h.syncer.Resync(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.syncer.Status())
}

func (h *Handler) SetFilter(c *gin.Context) {
	var f models.TicketFilter
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "unknown status " + string(f.Status)})
		return
	}
	if err := h.syncer.SetFilter(c.Request.Context(), f); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.syncer.Status())
}

type searchRequest struct {
	Term string `json:"term"`
}

// SetSearch schedules a debounced search; the new term applies once input
// settles, so the response is 202.
func (h *Handler) SetSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	if err := h.syncer.SetSearch(req.Term); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"term": req.Term})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var pageErr *subscription.PageError
	switch {
	case errors.Is(err, subscription.ErrFetchInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "fetch_in_flight", "message": err.Error()})
	case errors.Is(err, subscription.ErrNotStarted):
		c.JSON(http.StatusConflict, gin.H{"error": "not_started", "message": err.Error()})
	case errors.Is(err, subscription.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "closed", "message": err.Error()})
	case errors.As(err, &pageErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream", "message": err.Error(), "page": pageErr.Page})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
	}
}
