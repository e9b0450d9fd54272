package report

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Severity classifies an Event.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single notification emitted by the pipeline: a progress
// checkpoint, a warning, or an error message. Progress is a completion
// percentage in [0,100], or -1 when the event carries no checkpoint.
//
// Events are informational only. Abort conditions travel through the
// pipeline's error return, never through an Event.
type Event struct {
	Severity Severity
	Message  string
	Progress int
}

// Reporter receives pipeline events. A host environment can implement it to
// drive a progress bar or collect warnings; Report must not block for long
// since the pipeline is synchronous.
type Reporter interface {
	Report(e Event)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Report(Event) {}

// WriterReporter writes events as timestamped log lines to an io.Writer,
// filtering out events below a minimum severity.
type WriterReporter struct {
	w   io.Writer
	min Severity
	mu  sync.Mutex
}

// NewWriterReporter creates a reporter that logs to w.
func NewWriterReporter(w io.Writer, min Severity) *WriterReporter {
	if w == nil {
		w = io.Discard
	}
	return &WriterReporter{w: w, min: min}
}

func (r *WriterReporter) Report(e Event) {
	if e.Severity < r.min {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s", time.Now().Format("2006-01-02 15:04:05"), e.Severity, e.Message)
	if e.Progress >= 0 {
		line += fmt.Sprintf(" progress=%d%%", e.Progress)
	}
	fmt.Fprintln(r.w, line)
}

// ParseSeverity maps a config log level string to a minimum severity.
// Unknown levels fall back to info.
func ParseSeverity(level string) Severity {
	switch level {
	case "debug":
		return SeverityDebug
	case "warn":
		return SeverityWarning
	case "error":
		return SeverityError
	default:
		return SeverityInfo
	}
}

func reportf(r Reporter, sev Severity, progress int, format string, args ...interface{}) {
	if r == nil {
		return
	}
	r.Report(Event{Severity: sev, Message: fmt.Sprintf(format, args...), Progress: progress})
}
