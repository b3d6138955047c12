package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema checks the structural shape of a notification. Per-action
// requirements are enforced in Decode.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {
      "type": "string",
      "enum": ["create", "update", "delete", "updateUnread", "contactUpdate"]
    },
    "ticketId": {"type": "integer", "minimum": 1},
    "ticket": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "status": {"type": "string", "enum": ["open", "pending", "closed"]},
        "unreadMessages": {"type": "integer", "minimum": 0},
        "userId": {"type": ["integer", "null"]},
        "queueId": {"type": ["integer", "null"]},
        "contactId": {"type": "integer"},
        "tags": {"type": "array"}
      }
    },
    "contact": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var compiledSchema = mustCompile(envelopeSchema)

func mustCompile(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("events: invalid envelope schema: %v", err))
	}
	return s
}

// ErrMalformed is wrapped by every error returned from Decode.
var ErrMalformed = errors.New("malformed event")

// MalformedError describes why a raw notification was rejected.
type MalformedError struct {
	Action Action
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("malformed %s event: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Decode validates raw JSON against the envelope schema and converts it into
// a typed Event.
func Decode(raw []byte) (Event, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &MalformedError{Action: peekAction(raw), Reason: strings.Join(msgs, "; ")}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}
	return FromEnvelope(env)
}

// FromEnvelope converts an already unmarshalled envelope into a typed Event.
func FromEnvelope(env Envelope) (Event, error) {
	switch env.Action {
	case ActionCreate, ActionUpdate:
		if env.Ticket == nil || env.Ticket.ID == 0 {
			return nil, &MalformedError{Action: env.Action, Reason: "ticket with id required"}
		}
		if !env.Ticket.Status.Valid() {
			return nil, &MalformedError{Action: env.Action, Reason: fmt.Sprintf("invalid status %q", env.Ticket.Status)}
		}
		if env.Action == ActionCreate {
			return TicketCreated{Ticket: *env.Ticket}, nil
		}
		return TicketUpdated{Ticket: *env.Ticket}, nil

	case ActionDelete:
		id := env.TicketID
		if id == 0 && env.Ticket != nil {
			id = env.Ticket.ID
		}
		if id == 0 {
			return nil, &MalformedError{Action: env.Action, Reason: "ticketId required"}
		}
		return TicketDeleted{TicketID: id}, nil

	case ActionUpdateUnread:
		id := env.TicketID
		if env.Ticket != nil {
			if id != 0 && id != env.Ticket.ID {
				return nil, &MalformedError{Action: env.Action, Reason: "ticketId does not match ticket.id"}
			}
			id = env.Ticket.ID
			if env.Ticket.Status != "" && !env.Ticket.Status.Valid() {
				return nil, &MalformedError{Action: env.Action, Reason: fmt.Sprintf("invalid status %q", env.Ticket.Status)}
			}
		}
		if id == 0 {
			return nil, &MalformedError{Action: env.Action, Reason: "ticketId required"}
		}
		return UnreadChanged{TicketID: id, Ticket: env.Ticket}, nil

	case ActionContactUpdate:
		if env.Contact == nil || env.Contact.ID == 0 {
			return nil, &MalformedError{Action: env.Action, Reason: "contact with id required"}
		}
		return ContactUpdated{Contact: *env.Contact}, nil
	}
	return nil, &MalformedError{Action: env.Action, Reason: "unknown action"}
}

func peekAction(raw []byte) Action {
	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return Action(probe.Action)
}
