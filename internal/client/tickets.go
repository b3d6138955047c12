package client

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

// TicketsService handles ticket listing
type TicketsService struct {
	client *Client
}

// ListPage fetches one snapshot page of tickets matching filter. Pages are
// numbered from 1.
func (s *TicketsService) ListPage(ctx context.Context, filter models.TicketFilter, page int) (*models.TicketPage, error) {
	var result models.TicketPage
	if err := s.client.Get(ctx, "/api/v1/tickets", PageQuery(filter, page), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves a single ticket by id
func (s *TicketsService) Get(ctx context.Context, id int64) (*models.Ticket, error) {
	var result models.Ticket
	if err := s.client.Get(ctx, "/api/v1/tickets/"+strconv.FormatInt(id, 10), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PageQuery builds the listing query parameters. Id lists are sent as JSON
// arrays.
func PageQuery(filter models.TicketFilter, page int) map[string]string {
	f := filter.Normalize()
	if page < 1 {
		page = 1
	}

	query := map[string]string{
		"pageNumber": strconv.Itoa(page),
		"showAll":    strconv.FormatBool(f.ShowAll),
	}

	if f.Status != "" {
		query["status"] = string(f.Status)
	}
	if f.Search != "" {
		query["searchParam"] = f.Search
	}
	if len(f.QueueIDs) > 0 {
		query["queueIds"] = jsonIDs(f.QueueIDs)
	}
	if len(f.TagIDs) > 0 {
		query["tags"] = jsonIDs(f.TagIDs)
	}
	if len(f.UserIDs) > 0 {
		query["users"] = jsonIDs(f.UserIDs)
	}
	return query
}

func jsonIDs(ids []int64) string {
	b, _ := json.Marshal(ids)
	return string(b)
}
