package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/andywolf/oracle/internal/security"
)

// DefaultLogID is the Cloud Logging log name used when none is configured.
const DefaultLogID = "oracle"

// entryLogger is the subset of *logging.Logger the client logger uses.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// ClientLogger sends entries through the Cloud Logging API. Useful when
// the process runs somewhere without a logging agent.
type ClientLogger struct {
	client    *logging.Client
	logger    entryLogger
	sessionID string
	pass      int
	labels    map[string]string
	sanitizer *security.LogSanitizer
	mu        sync.Mutex
	closed    bool
}

// NewClientLogger connects to Cloud Logging for opts.ProjectID.
func NewClientLogger(ctx context.Context, opts LoggerOptions, clientOpts ...option.ClientOption) (*ClientLogger, error) {
	client, err := logging.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	client.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "[cloud-logging] %v\n", err)
	}

	logID := opts.LogID
	if logID == "" {
		logID = DefaultLogID
	}

	cl := newClientLogger(client.Logger(logID), opts)
	cl.client = client
	return cl, nil
}

func newClientLogger(l entryLogger, opts LoggerOptions) *ClientLogger {
	return &ClientLogger{
		logger:    l,
		sessionID: opts.SessionID,
		labels:    opts.labels(),
		sanitizer: opts.sanitizer(),
	}
}

// Log buffers an entry; the client sends it in the background.
func (cl *ClientLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	payload := map[string]interface{}{
		"message": cl.sanitizer.Sanitize(message),
		"pass":    cl.pass,
	}
	if cl.sessionID != "" {
		payload["sessionId"] = cl.sessionID
	}
	if f := sanitizeFields(cl.sanitizer, fields); f != nil {
		payload["fields"] = f
	}

	labels := make(map[string]string, len(cl.labels))
	for k, v := range cl.labels {
		labels[k] = v
	}

	cl.logger.Log(logging.Entry{
		Timestamp: time.Now(),
		Severity:  logging.ParseSeverity(string(severity)),
		Payload:   payload,
		Labels:    labels,
	})
}

func (cl *ClientLogger) LogInfo(message string)    { cl.Log(SeverityInfo, message, nil) }
func (cl *ClientLogger) LogWarning(message string) { cl.Log(SeverityWarning, message, nil) }
func (cl *ClientLogger) LogError(message string)   { cl.Log(SeverityError, message, nil) }

// Write sends each line of p as its own entry, like CloudLogger.Write.
func (cl *ClientLogger) Write(p []byte) (int, error) {
	writeLines(p, cl.Log)
	return len(p), nil
}

// SetPass updates the pass number for subsequent logs
func (cl *ClientLogger) SetPass(pass int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.pass = pass
}

// Flush blocks until buffered entries are sent.
func (cl *ClientLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return nil
	}
	return cl.logger.Flush()
}

// Close flushes and closes the underlying client.
func (cl *ClientLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true

	if err := cl.logger.Flush(); err != nil {
		return fmt.Errorf("failed to flush logs: %w", err)
	}
	if cl.client != nil {
		return cl.client.Close()
	}
	return nil
}

var (
	_ LoggerInterface = (*ClientLogger)(nil)
	_ io.Writer       = (*ClientLogger)(nil)
)
