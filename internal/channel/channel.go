// Package channel is the client side of the per-tenant notification channel.
//
// One connection per tenant is shared by every subscriber. Each subscriber
// registers its own handler; the transport connects on the first
// registration and disconnects when the last one is closed.
package channel

import (
	"context"
	"errors"

	"github.com/gotrs-io/gotrs-livesync/internal/events"
)

// State is the connectivity of a channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Handler receives events and connectivity changes for one registration.
// Callbacks run on the transport's reader goroutine and must not block for
// long.
type Handler struct {
	OnEvent func(events.Event)
	OnState func(State)
}

// Command is an upstream subscription request. Commands are fire-and-forget.
type Command struct {
	Command string `json:"command"`
	Status  string `json:"status,omitempty"`
	Tenant  string `json:"tenant,omitempty"`
}

const (
	CommandJoinTickets      = "joinTickets"
	CommandJoinNotification = "joinNotification"
	CommandLeaveTickets     = "leaveTickets"
)

// Channel is a tenant-scoped push channel.
type Channel interface {
	Tenant() string
	State() State
	Subscribe(h Handler) (*Registration, error)
	Send(ctx context.Context, cmd Command) error
}

var (
	// ErrNotConnected is returned by Send while no connection is up
	ErrNotConnected = errors.New("channel not connected")
	// ErrClosed is returned when subscribing to a closed channel
	ErrClosed = errors.New("channel closed")
)
