// File: envresolver/audit.go
package envresolver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit trail entries.
type EventType string

const (
	EventValueLoaded       EventType = "value_loaded"
	EventValidationFailure EventType = "validation_failure"
	EventPolicyViolation   EventType = "policy_violation"
	EventSourceError       EventType = "source_error"
	EventResolveSuccess    EventType = "resolve_success"
	EventResolveFailure    EventType = "resolve_failure"
)

// Event is one audit trail entry. Events never carry raw secret values;
// keys marked Secret are redacted at emission time.
type Event struct {
	Type     EventType
	Time     time.Time
	Key      string
	Source   string
	Err      string
	Metadata map[string]string

	// Session ties the event to one resolution call, empty for
	// process-level events.
	Session string
}

// auditTracker is the process-wide bounded event ring. All mutation is
// mutex-guarded: unlike the single-threaded runtime this design came from,
// resolutions here run on real goroutines.
type auditTracker struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	next     int
	full     bool
}

var tracker = &auditTracker{capacity: DefaultAuditCapacity}

func (t *auditTracker) record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.events == nil {
		t.events = make([]Event, t.capacity)
	}
	t.events[t.next] = e
	t.next = (t.next + 1) % t.capacity
	if t.next == 0 {
		t.full = true
	}
}

// snapshot returns events oldest-first, filtered by session when the
// argument is non-empty.
func (t *auditTracker) snapshot(session string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ordered []Event
	if t.full {
		ordered = append(ordered, t.events[t.next:]...)
		ordered = append(ordered, t.events[:t.next]...)
	} else {
		ordered = append(ordered, t.events[:t.next]...)
	}

	if session == "" {
		return ordered
	}
	filtered := ordered[:0]
	for _, e := range ordered {
		if e.Session == session {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (t *auditTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.next = 0
	t.full = false
}

// newSessionID generates the identifier tying one resolution call's events
// together.
func newSessionID() string {
	return uuid.NewString()
}

// AuditLog returns recorded audit events, oldest first. With a nil result
// it returns the full process-wide trail. With a result it returns only
// the events of that result's resolution session; a result produced with
// auditing disabled yields an empty list.
func AuditLog(r *Result) []Event {
	if r == nil {
		return tracker.snapshot("")
	}
	if r.sessionID == "" {
		return nil
	}
	return tracker.snapshot(r.sessionID)
}

// ClearAuditLog drops all recorded events.
func ClearAuditLog() {
	tracker.clear()
}
