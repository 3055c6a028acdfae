package backuplog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the strategy a backup was taken with.
type Kind string

const (
	KindFull         Kind = "full"
	KindIncremental  Kind = "incremental"
	KindDifferential Kind = "differential"
)

// Kinds lists every backup kind, in the order their directories are created.
var Kinds = []Kind{KindFull, KindIncremental, KindDifferential}

// ParseKind converts a user supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backup kind %q", s)
}

// legacyTimestampLayout is the zone-less ISO form written by the previous
// version of the application. It is interpreted as local time.
const legacyTimestampLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is an ISO-8601 point in time. It is written as RFC 3339 and read
// back from either RFC 3339 or the legacy zone-less form. A value that parses
// as neither is kept verbatim and written back unchanged.
type Timestamp struct {
	time.Time
	raw json.RawMessage
}

// Valid reports whether the timestamp was parsed into a point in time.
func (t Timestamp) Valid() bool { return t.raw == nil && !t.Time.IsZero() }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t Timestamp) MarshalYAML() (any, error) {
	if t.raw != nil {
		var s string
		if json.Unmarshal(t.raw, &s) == nil {
			return s, nil
		}
		return string(t.raw), nil
	}
	return t.Time.Format(time.RFC3339Nano), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := ParseTimestamp(s); err == nil {
			t.Time, t.raw = parsed, nil
			return nil
		}
	}
	t.Time = time.Time{}
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ParseTimestamp parses an RFC 3339 or legacy ISO timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(legacyTimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return ts, nil
}

// Event records one completed backup. A record that cannot be decoded is
// kept as is so rewriting the log never drops it.
type Event struct {
	Kind      Kind      `json:"kind"      yaml:"kind"`
	Timestamp Timestamp `json:"timestamp" yaml:"timestamp"`
	Filename  string    `json:"filename"  yaml:"filename"`
	Path      string    `json:"path"      yaml:"path"`

	raw json.RawMessage
}

// NewEvent builds an Event for an artifact created at the given time.
func NewEvent(kind Kind, at time.Time, filename, path string) Event {
	return Event{
		Kind:      kind,
		Timestamp: Timestamp{Time: at},
		Filename:  filename,
		Path:      path,
	}
}

// Time returns the moment the backup was recorded.
func (e Event) Time() time.Time { return e.Timestamp.Time }

// Valid reports whether the record was fully decoded. Invalid records are
// listed but never used as a change baseline.
func (e Event) Valid() bool {
	if e.raw != nil || !e.Timestamp.Valid() {
		return false
	}
	_, err := ParseKind(string(e.Kind))
	return err == nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	type plainEvent Event
	return json.Marshal(plainEvent(e))
}

// UnmarshalJSON also accepts records that name the kind "type".
func (e *Event) UnmarshalJSON(data []byte) error {
	type plainEvent Event
	var rec struct {
		plainEvent
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &rec); err != nil || string(data) == "null" {
		*e = Event{raw: append(json.RawMessage(nil), data...)}
		return nil
	}
	*e = Event(rec.plainEvent)
	if e.Kind == "" {
		e.Kind = rec.Type
	}
	return nil
}

// latest returns the valid event with the greatest timestamp among those
// accepted by keep. Ties resolve to the first one found.
func latest(events []Event, keep func(Event) bool) (Event, bool) {
	var (
		best  Event
		found bool
	)
	for _, ev := range events {
		if !ev.Valid() || !keep(ev) {
			continue
		}
		if !found || ev.Time().After(best.Time()) {
			best = ev
			found = true
		}
	}
	return best, found
}
