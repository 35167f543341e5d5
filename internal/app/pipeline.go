package app

import (
	"context"
	"fmt"

	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/messaging"
	"github.com/meszmate/roster-core/internal/metrics"
)

// ServerEventHandler consumes an event or passes it on. Returning a nil event
// consumes it; returning an event, possibly rewritten, hands it to the next
// handler.
type ServerEventHandler interface {
	Name() string
	HandleEvent(ctx context.Context, ev event.ServerEvent) (event.ServerEvent, error)
}

// HandlerError is a failure of one handler. It aborted the rest of the chain
// for one event.
type HandlerError struct {
	Handler string
	Event   string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on %s event: %v", e.Handler, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Pipeline feeds events through an ordered chain of handlers.
type Pipeline struct {
	handlers []ServerEventHandler
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// NewPipeline creates a pipeline that runs handlers in the given order.
func NewPipeline(log *logging.Logger, m *metrics.Metrics, handlers ...ServerEventHandler) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{handlers: handlers, log: log, metrics: m}
}

// Services are the collaborators of the default handlers.
type Services struct {
	UserInfo  UserInfoService
	Presence  PresenceService
	Rooms     RoomsService
	Sidebar   SidebarService
	Responder RequestResponder
	Messages  MessagesRepository
	Parser    *messaging.Parser
	Events    ClientEventDispatcher
}

// NewDefaultPipeline wires the standard handlers. Requests are answered
// before anything else looks at them. The messages handler updates the
// sidebar once a new message was appended and announces the sidebar change
// ahead of the appended messages.
func NewDefaultPipeline(s Services, log *logging.Logger, m *metrics.Metrics) *Pipeline {
	return NewPipeline(log, m,
		&connectionHandler{presence: s.Presence, rooms: s.Rooms, events: s.Events},
		&requestHandler{responder: s.Responder},
		&userInfoHandler{users: s.UserInfo, events: s.Events},
		&userStateHandler{presence: s.Presence, events: s.Events},
		&roomsHandler{rooms: s.Rooms, events: s.Events},
		&sidebarHandler{sidebar: s.Sidebar, events: s.Events},
		&messagesHandler{
			parser:   s.Parser,
			rooms:    s.Rooms,
			sidebar:  s.Sidebar,
			messages: s.Messages,
			events:   s.Events,
			metrics:  m,
		},
	)
}

// Dispatch runs ev through the chain. A handler error is logged, counted and
// returned as a *HandlerError; it only affects this event.
func (p *Pipeline) Dispatch(ctx context.Context, ev event.ServerEvent) error {
	name := eventName(ev)
	p.metrics.Event(name)

	for _, h := range p.handlers {
		next, err := h.HandleEvent(ctx, ev)
		if err != nil {
			p.metrics.HandlerError(h.Name())
			herr := &HandlerError{Handler: h.Name(), Event: name, Err: err}
			p.log.Error("%v", herr)
			return herr
		}
		if next == nil {
			return nil
		}
		ev = next
	}

	p.log.Debug("Dropping unhandled %s event: %+v", name, ev)
	return nil
}

// eventName is the label of ev in logs and metrics.
func eventName(ev event.ServerEvent) string {
	switch ev.(type) {
	case event.ConnectionEvent:
		return "connection"
	case event.UserStatusEvent:
		return "user_status"
	case event.UserInfoEvent:
		return "user_info"
	case event.UserResourceEvent:
		return "user_resource"
	case event.RoomEvent:
		return "room"
	case event.OccupantEvent:
		return "occupant"
	case event.RequestEvent:
		return "request"
	case event.MessageEvent:
		return "message"
	case event.SidebarBookmarkEvent:
		return "sidebar_bookmark"
	default:
		return "unknown"
	}
}
