package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

const (
	TypeConnected   = "connected"
	TypeHeartbeat   = "heartbeat"
	TypeClaudeReady = "claude_ready"
)

// Event is a message fanned out to stream clients. Payload keys are written
// next to type, event and timestamp in the JSON object.
type Event struct {
	Type      string
	Event     string
	Timestamp int64
	Payload   map[string]any
}

func NewEvent(eventType, event string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Field returns a payload value as a string, or "" when it is absent.
func (e Event) Field(key string) string {
	value, _ := e.Payload[key].(string)
	return value
}

func (e Event) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(e.Payload)+3)
	maps.Copy(fields, e.Payload)

	fields["type"] = e.Type
	fields["timestamp"] = e.Timestamp
	if e.Event != "" {
		fields["event"] = e.Event
	} else {
		delete(fields, "event")
	}

	return json.Marshal(fields)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return err
	}

	eventType, _ := fields["type"].(string)
	if eventType == "" {
		return fmt.Errorf("event without type")
	}

	*e = Event{Type: eventType}
	e.Event, _ = fields["event"].(string)
	if ts, ok := fields["timestamp"].(json.Number); ok {
		e.Timestamp, _ = ts.Int64()
	}

	delete(fields, "type")
	delete(fields, "event")
	delete(fields, "timestamp")
	if len(fields) > 0 {
		e.Payload = fields
	}

	return nil
}
