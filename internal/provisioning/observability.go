package provisioning

import (
	"fmt"
	"io"
	"log"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Observer receives the structured events of a run alongside free-form lines.
type Observer interface {
	Logger

	Event(event Event)

	// Progress reports how far a stage got through a countable job, such
	// as uploads.
	Progress(phase string, current, total int)

	// WithFields returns an Observer that adds fields to every event.
	WithFields(fields map[string]string) Observer
}

// Event is one structured pipeline event.
type Event struct {
	Type     EventType
	Phase    string // stage name
	Message  string
	Resource string        // name or ID of the resource the event is about
	Duration time.Duration // stage duration on completion or failure
	Err      error
	Fields   map[string]string
}

// EventType classifies an Event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	// EventResourceExists is a resource reused from an earlier run.
	EventResourceExists EventType = "resource.exists"

	EventValidationWarning EventType = "validation.warning"
	EventValidationError   EventType = "validation.error"

	// EventPollAttempt is one probe of the readiness or deployment wait.
	EventPollAttempt EventType = "poll.attempt"
)

// LogPhaseStart emits EventPhaseStarted.
func LogPhaseStart(o Observer, phase string) {
	o.Event(Event{Type: EventPhaseStarted, Phase: phase, Message: "starting"})
}

// LogPhaseComplete emits EventPhaseCompleted with the stage duration.
func LogPhaseComplete(o Observer, phase string, d time.Duration) {
	o.Event(Event{
		Type:     EventPhaseCompleted,
		Phase:    phase,
		Message:  "completed in " + d.Round(time.Millisecond).String(),
		Duration: d,
	})
}

// LogPhaseFailed emits EventPhaseFailed. The error class, when known, is
// recorded in the "class" field.
func LogPhaseFailed(o Observer, phase string, d time.Duration, err error) {
	fields := map[string]string{}
	if class := ClassOf(err); class != "" {
		fields["class"] = string(class)
	}
	o.Event(Event{
		Type:     EventPhaseFailed,
		Phase:    phase,
		Message:  fmt.Sprintf("failed: %v", err),
		Duration: d,
		Err:      err,
		Fields:   fields,
	})
}

// LogPollAttempt emits EventPollAttempt with the state the probe observed.
func LogPollAttempt(o Observer, phase string, attempt int, state string) {
	o.Event(Event{
		Type:    EventPollAttempt,
		Phase:   phase,
		Message: fmt.Sprintf("attempt %d: %s", attempt, state),
		Fields:  map[string]string{"attempt": strconv.Itoa(attempt), "state": state},
	})
}

// LogResourceCreating emits EventResourceCreating.
func LogResourceCreating(o Observer, phase, kind, name string) {
	o.Event(resourceEvent(EventResourceCreating, phase, kind, name, "", "creating "+kind))
}

// LogResourceCreated emits EventResourceCreated.
func LogResourceCreated(o Observer, phase, kind, name, id string) {
	o.Event(resourceEvent(EventResourceCreated, phase, kind, name, id, kind+" created"))
}

// LogResourceExists emits EventResourceExists.
func LogResourceExists(o Observer, phase, kind, name, id string) {
	o.Event(resourceEvent(EventResourceExists, phase, kind, name, id, kind+" already exists"))
}

func resourceEvent(t EventType, phase, kind, name, id, msg string) Event {
	fields := map[string]string{"type": kind}
	if id != "" {
		fields["id"] = id
	}
	return Event{Type: t, Phase: phase, Resource: name, Message: msg, Fields: fields}
}

// ConsoleObserver writes events as single log lines.
type ConsoleObserver struct {
	out    *log.Logger
	fields map[string]string
}

// NewConsoleObserver writes through the standard logger.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{out: log.Default()}
}

func (o *ConsoleObserver) Printf(format string, v ...any) {
	o.out.Printf(format, v...)
}

func (o *ConsoleObserver) Event(event Event) {
	o.out.Print(o.format(event))
}

func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total <= 0 {
		o.out.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	o.out.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, current*100/total)
}

func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	merged := maps.Clone(o.fields)
	if merged == nil {
		merged = make(map[string]string, len(fields))
	}
	maps.Copy(merged, fields)
	return &ConsoleObserver{out: o.out, fields: merged}
}

// format renders "type [phase] resource=name message (k=v, ...)". Event
// fields win over observer fields of the same key.
func (o *ConsoleObserver) format(event Event) string {
	var b strings.Builder
	b.WriteString(string(event.Type))
	if event.Phase != "" {
		fmt.Fprintf(&b, " [%s]", event.Phase)
	}
	if event.Resource != "" {
		fmt.Fprintf(&b, " resource=%s", event.Resource)
	}
	b.WriteString(" ")
	b.WriteString(event.Message)

	fields := maps.Clone(o.fields)
	if fields == nil {
		fields = map[string]string{}
	}
	maps.Copy(fields, event.Fields)
	if len(fields) > 0 {
		kvs := make([]string, 0, len(fields))
		for _, k := range slices.Sorted(maps.Keys(fields)) {
			kvs = append(kvs, k+"="+fields[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(kvs, ", "))
	}
	return b.String()
}

// LogrObserver writes events as logr key/value records.
type LogrObserver struct {
	log logr.Logger
}

func NewLogrObserver(l logr.Logger) *LogrObserver {
	return &LogrObserver{log: l}
}

// NewJSONObserver writes one JSON object per line to w.
func NewJSONObserver(w io.Writer) *LogrObserver {
	l := funcr.NewJSON(func(obj string) {
		_, _ = fmt.Fprintln(w, obj)
	}, funcr.Options{LogTimestamp: true})
	return NewLogrObserver(l.WithName("edgerun"))
}

func (o *LogrObserver) Printf(format string, v ...any) {
	o.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (o *LogrObserver) Event(event Event) {
	kv := []any{"type", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	if event.Duration > 0 {
		kv = append(kv, "duration", event.Duration.Round(time.Millisecond).String())
	}
	kv = append(kv, pairs(event.Fields)...)

	if event.Err != nil {
		o.log.Error(event.Err, event.Message, kv...)
		return
	}
	o.log.Info(event.Message, kv...)
}

func (o *LogrObserver) Progress(phase string, current, total int) {
	o.log.Info("progress", "phase", phase, "current", current, "total", total)
}

func (o *LogrObserver) WithFields(fields map[string]string) Observer {
	return &LogrObserver{log: o.log.WithValues(pairs(fields)...)}
}

// pairs flattens fields into logr key/value arguments in key order.
func pairs(fields map[string]string) []any {
	kv := make([]any, 0, 2*len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		kv = append(kv, k, fields[k])
	}
	return kv
}

// MultiObserver passes every call to each of its observers in order.
type MultiObserver []Observer

func (m MultiObserver) Printf(format string, v ...any) {
	for _, o := range m {
		o.Printf(format, v...)
	}
}

func (m MultiObserver) Event(event Event) {
	for _, o := range m {
		o.Event(event)
	}
}

func (m MultiObserver) Progress(phase string, current, total int) {
	for _, o := range m {
		o.Progress(phase, current, total)
	}
}

func (m MultiObserver) WithFields(fields map[string]string) Observer {
	out := make(MultiObserver, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}
