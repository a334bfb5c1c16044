package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andywolf/oracle/internal/security"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Component is the label attached to every entry.
const Component = "oracle"

// LoggerInterface is what monitoring passes log through.
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetPass(pass int)
	Flush() error
	Close() error
}

// LoggerOptions selects and configures the logger NewLogger builds.
type LoggerOptions struct {
	// ProjectID enables the Cloud Logging API client. When empty, entries
	// are written as JSON to Writer.
	ProjectID string
	LogID     string
	SessionID string
	Labels    map[string]string
	Writer    io.Writer
	Sanitizer *security.LogSanitizer
}

func (o LoggerOptions) labels() map[string]string {
	labels := map[string]string{"component": Component}
	if o.SessionID != "" {
		labels["session_id"] = o.SessionID
	}
	for k, v := range o.Labels {
		labels[k] = v
	}
	return labels
}

func (o LoggerOptions) sanitizer() *security.LogSanitizer {
	if o.Sanitizer != nil {
		return o.Sanitizer
	}
	return security.NewLogSanitizer()
}

// NewLogger creates the appropriate logger for opts. The API client is
// used when a project is configured; otherwise structured JSON goes to
// stderr on GCP (picked up by the logging agent) and stdout elsewhere.
func NewLogger(ctx context.Context, opts LoggerOptions) (LoggerInterface, error) {
	if opts.ProjectID != "" {
		return NewClientLogger(ctx, opts)
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
		if IsRunningOnGCP() {
			opts.Writer = os.Stderr
		}
	}
	return NewCloudLogger(opts), nil
}

// LogEntry is one structured log line, in the shape the Cloud Logging
// agent parses from stdout/stderr.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	SessionID string                 `json:"sessionId,omitempty"`
	Pass      int                    `json:"pass"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// CloudLogger writes one JSON LogEntry per line. It is also an io.Writer,
// so component *log.Logger output can be routed through it.
type CloudLogger struct {
	mu        sync.Mutex
	enc       *json.Encoder
	w         io.Writer
	sessionID string
	labels    map[string]string
	sanitizer *security.LogSanitizer
	pass      int
	closed    bool
	now       func() time.Time
}

var (
	_ LoggerInterface = (*CloudLogger)(nil)
	_ io.Writer       = (*CloudLogger)(nil)
)

// NewCloudLogger writes to opts.Writer, or stderr when it is nil.
// ProjectID and LogID are ignored.
func NewCloudLogger(opts LoggerOptions) *CloudLogger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	return &CloudLogger{
		enc:       json.NewEncoder(w),
		w:         w,
		sessionID: opts.SessionID,
		labels:    opts.labels(),
		sanitizer: opts.sanitizer(),
		now:       time.Now,
	}
}

// Log writes a structured log entry
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return
	}

	err := cl.enc.Encode(LogEntry{
		Severity:  severity,
		Message:   cl.sanitizer.Sanitize(message),
		Timestamp: cl.now().UTC().Format(time.RFC3339Nano),
		SessionID: cl.sessionID,
		Pass:      cl.pass,
		Labels:    cl.labels,
		Fields:    sanitizeFields(cl.sanitizer, fields),
	})
	if err != nil {
		fmt.Fprintf(cl.w, "{\"severity\":\"ERROR\",\"message\":%q}\n", "unencodable log entry: "+err.Error())
	}
}

func (cl *CloudLogger) LogInfo(message string)    { cl.Log(SeverityInfo, message, nil) }
func (cl *CloudLogger) LogWarning(message string) { cl.Log(SeverityWarning, message, nil) }
func (cl *CloudLogger) LogError(message string)   { cl.Log(SeverityError, message, nil) }

// Write logs each line of p as its own entry.
func (cl *CloudLogger) Write(p []byte) (int, error) {
	writeLines(p, cl.Log)
	return len(p), nil
}

// SetPass updates the pass number for subsequent logs
func (cl *CloudLogger) SetPass(pass int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.pass = pass
}

// Flush syncs the writer when it is a file.
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if f, ok := cl.w.(interface{ Sync() error }); ok && !cl.closed {
		// Sync on a terminal or pipe returns EINVAL; that is not a failure.
		_ = f.Sync()
	}
	return nil
}

// Close stops further output. It does not close the writer.
func (cl *CloudLogger) Close() error {
	_ = cl.Flush()
	cl.mu.Lock()
	cl.closed = true
	cl.mu.Unlock()
	return nil
}

// logLinePrefix matches the "[monitor] " prefix and log.LstdFlags
// timestamp of a *log.Logger line.
var logLinePrefix = regexp.MustCompile(`^(?:\[[^\]]+\]\s*)?(?:\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?\s*)?`)

// writeLines strips *log.Logger decoration from each non-empty line of p
// and passes it to log with a severity guessed from the text.
func writeLines(p []byte, log func(Severity, string, map[string]interface{})) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r")
		line = logLinePrefix.ReplaceAllString(line, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		log(severityOf(line), line, nil)
	}
}

// severityOf maps message wording to a severity. Component loggers start
// warnings with "Warning:" and report failures with "failed".
func severityOf(message string) Severity {
	lower := strings.ToLower(message)
	switch {
	case strings.HasPrefix(lower, "error"), strings.Contains(lower, "error:"),
		strings.Contains(lower, "failed"), strings.Contains(lower, "panic"):
		return SeverityError
	case strings.HasPrefix(lower, "warn"), strings.Contains(lower, "warning"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// sanitizeFields redacts string and error values, and replaces every value
// under a sensitive key.
func sanitizeFields(s *security.LogSanitizer, fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if security.IsSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = s.Sanitize(val)
		case error:
			out[k] = s.Sanitize(val.Error())
		case fmt.Stringer:
			out[k] = s.Sanitize(val.String())
		default:
			out[k] = v
		}
	}
	return out
}
