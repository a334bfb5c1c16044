package observability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// ingestionPath is the batched ingestion API path.
	ingestionPath = "/api/public/ingestion"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4096
)

// ingestionEvent is a single event in an ingestion batch. Body is one of the
// *Body types below.
type ingestionEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Body      interface{} `json:"body"`
}

type traceBody struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// observationBody covers spans, generations and events.
type observationBody struct {
	ID                  string                 `json:"id"`
	TraceID             string                 `json:"traceId"`
	ParentObservationID string                 `json:"parentObservationId,omitempty"`
	Name                string                 `json:"name,omitempty"`
	Model               string                 `json:"model,omitempty"`
	Input               string                 `json:"input,omitempty"`
	Output              string                 `json:"output,omitempty"`
	Level               string                 `json:"level,omitempty"`
	Usage               *usageBody             `json:"usage,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	StartTime           string                 `json:"startTime,omitempty"`
	EndTime             string                 `json:"endTime,omitempty"`
}

type usageBody struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type ingestionPayload struct {
	Batch []ingestionEvent `json:"batch"`
}

type ingestionResponse struct {
	Successes []ingestionSuccess `json:"successes"`
	Errors    []ingestionError   `json:"errors"`
}

type ingestionSuccess struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type ingestionError struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// statusError is a non-2xx ingestion response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("langfuse API returned %d: %s", e.Code, e.Body)
}

// retryable reports whether err may succeed on a second attempt: transport
// failures, 429 and 5xx. Credential and payload errors are final.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ingestClient posts batches to the ingestion endpoint.
type ingestClient struct {
	endpoint   string
	authHeader string
	http       *http.Client
	retryDelay time.Duration
}

func newIngestClient(baseURL, publicKey, secretKey string, timeout time.Duration) *ingestClient {
	auth := base64.StdEncoding.EncodeToString([]byte(publicKey + ":" + secretKey))
	return &ingestClient{
		endpoint:   baseURL + ingestionPath,
		authHeader: "Basic " + auth,
		http:       &http.Client{Timeout: timeout},
		retryDelay: 500 * time.Millisecond,
	}
}

// sendWithRetry sends batch, retrying once when the failure is transient.
func (c *ingestClient) sendWithRetry(ctx context.Context, batch []ingestionEvent) (ingestionResponse, error) {
	resp, err := c.send(ctx, batch)
	if err == nil || !retryable(err) {
		return resp, err
	}

	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ingestionResponse{}, fmt.Errorf("%w (retry abandoned: %v)", err, ctx.Err())
	case <-timer.C:
	}
	return c.send(ctx, batch)
}

func (c *ingestClient) send(ctx context.Context, batch []ingestionEvent) (ingestionResponse, error) {
	body, err := json.Marshal(ingestionPayload{Batch: batch})
	if err != nil {
		return ingestionResponse{}, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ingestionResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return ingestionResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= 400 {
		return ingestionResponse{}, &statusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result ingestionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return ingestionResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return result, nil
}
