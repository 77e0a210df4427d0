package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Header keys set on bridged messages.
const (
	HeaderEventID   = "Workflow-Event-Id"
	HeaderEventType = "Workflow-Event-Type"
	HeaderEventName = "Workflow-Event-Name"
)

// MsgPublisher is the part of *nats.Conn used by NATSBridge.
type MsgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSBridge forwards published events to NATS. Each event name becomes a
// subject under the bridge prefix; the payload is the protobuf JSON encoding
// of Payload.
type NATSBridge struct {
	conn   MsgPublisher
	prefix string
}

// NewNATSBridge creates a bridge publishing under prefix. An empty prefix
// publishes the event names as-is.
func NewNATSBridge(conn MsgPublisher, prefix string) *NATSBridge {
	return &NATSBridge{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// DialNATS connects to a NATS server with reconnect settings suited to a
// long-running publisher.
func DialNATS(url, clientName string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Subject maps an event name to a NATS subject. Characters NATS reserves
// for tokens and wildcards are replaced.
func (b *NATSBridge) Subject(name string) string {
	subject := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, name)
	if b.prefix == "" {
		return subject
	}
	return b.prefix + "." + subject
}

// Publish sends the event to the subject derived from name. Delivery is
// fire and forget; only encoding and connection errors are returned.
func (b *NATSBridge) Publish(ctx context.Context, name string, event *Event) error {
	payload, err := Payload(name, event)
	if err != nil {
		return err
	}
	data, err := protojson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}

	msg := nats.NewMsg(b.Subject(name))
	msg.Data = data
	msg.Header.Set(HeaderEventID, event.ID.String())
	msg.Header.Set(HeaderEventType, event.TypeName())
	msg.Header.Set(HeaderEventName, name)

	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Payload builds the structured representation of an event. Context
// values that protobuf cannot represent are rendered with fmt.
func Payload(name string, event *Event) (*structpb.Struct, error) {
	places := event.Marking().Places()
	marking := make([]any, 0, len(places))
	for _, p := range places {
		marking = append(marking, p)
	}

	payload := map[string]any{
		"id":         event.ID.String(),
		"name":       name,
		"type":       event.TypeName(),
		"kind":       string(event.Kind()),
		"workflow":   event.WorkflowName(),
		"transition": event.TransitionName(),
		"marking":    marking,
		"blocked":    event.IsBlocked(),
	}

	if ctx := event.Context(); len(ctx) > 0 {
		values := make(map[string]any, len(ctx))
		for k, v := range ctx {
			if _, err := structpb.NewValue(v); err != nil {
				values[k] = fmt.Sprint(v)
				continue
			}
			values[k] = v
		}
		payload["context"] = values
	}

	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("build payload for %s: %w", name, err)
	}
	return s, nil
}
