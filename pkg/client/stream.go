package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"rterm/internal/metrics"
	"rterm/pkg/events"
)

// DefaultReconnectDelay is the pause between event stream connection attempts.
const DefaultReconnectDelay = 2 * time.Second

// Event frame types sent by the server.
const (
	FrameOutput   = "output"
	FrameExit     = "exit"
	FrameSubprocs = "subprocs"
	FrameSuspend  = "suspend"
	FrameResume   = "resume"
)

// Frame is one server-pushed event. Process events carry the process handle;
// suspend and resume apply to every session of the client.
type Frame struct {
	Type        string `json:"type"`
	Handle      string `json:"handle,omitempty"`
	Data        string `json:"data,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
	HasSubprocs bool   `json:"has_subprocs,omitempty"`
}

// EventStream receives server events over a websocket and publishes them on
// an events.Bus, keyed by process handle.
type EventStream struct {
	url            string
	header         http.Header
	bus            *events.Bus
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
}

// NewEventStream creates a stream for this client's events.
func (c *Client) NewEventStream(bus *events.Bus) (*EventStream, error) {
	url, err := c.config.Server.EventsURLOrDefault()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token := c.config.Auth.Token; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	header.Set(ClientIDHeader, c.clientID)

	return NewEventStream(url, header, bus), nil
}

func NewEventStream(url string, header http.Header, bus *events.Bus) *EventStream {
	return &EventStream{
		url:    url,
		header: header,
		bus:    bus,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		reconnectDelay: DefaultReconnectDelay,
	}
}

// SetReconnectDelay overrides DefaultReconnectDelay.
func (s *EventStream) SetReconnectDelay(d time.Duration) {
	s.reconnectDelay = d
}

// Run receives events until ctx is cancelled, reconnecting after errors.
func (s *EventStream) Run(ctx context.Context) error {
	for {
		err := s.receive(ctx)
		if ctx.Err() != nil {
			return nil
		}

		metrics.EventStreamReconnectsTotal.Inc()
		log.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("Event stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *EventStream) receive(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream at %s: %w", s.url, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Debug().Str("url", s.url).Msg("Event stream connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read event frame: %w", err)
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			metrics.EventFramesTotal.WithLabelValues("invalid").Inc()
			log.Debug().Err(err).Msg("Dropping malformed event frame")
			continue
		}
		s.dispatch(frame)
	}
}

func (s *EventStream) dispatch(f Frame) {
	// An empty key is a bus broadcast, so process frames need a handle.
	switch f.Type {
	case FrameOutput, FrameExit, FrameSubprocs:
		if f.Handle == "" {
			metrics.EventFramesTotal.WithLabelValues("invalid").Inc()
			log.Debug().Str("type", f.Type).Msg("Dropping process event frame without handle")
			return
		}
	}

	switch f.Type {
	case FrameOutput:
		s.bus.Publish(events.TopicOutput, f.Handle, events.Output{Data: f.Data})
	case FrameExit:
		s.bus.Publish(events.TopicProcessExit, f.Handle, events.ProcessExit{ExitCode: f.ExitCode})
	case FrameSubprocs:
		s.bus.Publish(events.TopicSubprocs, f.Handle, events.Subprocs{HasSubprocs: f.HasSubprocs})
	case FrameSuspend:
		s.bus.Publish(events.TopicSessionSerialization, "", events.Serialization{Action: events.SerializationSuspend})
	case FrameResume:
		s.bus.Publish(events.TopicSessionSerialization, "", events.Serialization{Action: events.SerializationResume})
	default:
		metrics.EventFramesTotal.WithLabelValues("unknown").Inc()
		log.Debug().Str("type", f.Type).Msg("Ignoring unknown event frame")
		return
	}
	metrics.EventFramesTotal.WithLabelValues(f.Type).Inc()
}
