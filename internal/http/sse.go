package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/bus"
)

// subscriberBuffer bounds how many mirrored events a slow SSE client may lag
// before events are dropped for that client.
const subscriberBuffer = 64

// EventStream serves mirrored pipeline events to SSE clients by tailing the
// NATS subjects the bus mirror publishes to.
type EventStream struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewEventStream creates a stream over an established NATS connection.
func NewEventStream(nc *nats.Conn, logger *zap.Logger) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStream{nc: nc, logger: logger.Named("http.sse")}
}

// handleEvents streams events as server-sent events. The optional "type"
// query parameter narrows the stream, e.g. ?type=pipeline:* or
// ?type=validation:failed.
func (s *Server) handleEvents(c echo.Context) error {
	if s.events == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event streaming requires the NATS mirror")
	}
	return s.events.serve(c)
}

func (e *EventStream) serve(c echo.Context) error {
	subject := subjectFilter(c.QueryParam("type"))

	ch := make(chan *nats.Msg, subscriberBuffer)
	sub, err := e.nc.ChanSubscribe(subject, ch)
	if err != nil {
		e.logger.Error("sse subscription failed", zap.String("subject", subject), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "event subscription failed")
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eventType := eventTypeFromSubject(msg.Subject)
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", eventType, msg.Data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

// subjectFilter maps an event type pattern to a NATS subscription subject.
// "pipeline:*" becomes "loom.events.pipeline.>", empty matches everything.
func subjectFilter(typePattern string) string {
	if typePattern == "" || typePattern == "*" {
		return bus.SubjectPrefix + ".>"
	}
	if prefix, ok := strings.CutSuffix(typePattern, ":*"); ok {
		return bus.SubjectPrefix + "." + strings.ReplaceAll(prefix, ":", ".") + ".>"
	}
	return bus.Subject(typePattern)
}

// eventTypeFromSubject reverses the subject mapping back to the event type.
func eventTypeFromSubject(subject string) string {
	trimmed := strings.TrimPrefix(subject, bus.SubjectPrefix+".")
	return strings.ReplaceAll(trimmed, ".", ":")
}
