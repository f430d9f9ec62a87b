package tuner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPLogSource is a LogSource backed by the external analytics sink's
// HTTP API, following the same bare net/http.Client JSON pattern as
// events.HTTPSink (no ecosystem HTTP client library is used anywhere in
// the teacher's stack for outbound JSON calls).
type HTTPLogSource struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPLogSource creates an HTTPLogSource.
func NewHTTPLogSource(baseURL, apiKey string, timeout time.Duration) *HTTPLogSource {
	return &HTTPLogSource{client: &http.Client{Timeout: timeout}, baseURL: baseURL, apiKey: apiKey}
}

type logView struct {
	Project         string   `json:"project"`
	CacheDecision   string   `json:"cache_decision"`
	CacheSimilarity *float64 `json:"cache_similarity"`
}

// CacheSimilarity implements LogSource.
func (h *HTTPLogSource) CacheSimilarity(ctx context.Context, project, logID string) (*float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/events/"+logID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analytics sink returned status %d for log %s", resp.StatusCode, logID)
	}

	var view logView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, err
	}
	if view.Project != project {
		return nil, fmt.Errorf("log %s does not belong to project %s", logID, project)
	}
	if view.CacheDecision != "semantic" {
		return nil, nil
	}
	return view.CacheSimilarity, nil
}

// MarkFlagged implements LogSource.
func (h *HTTPLogSource) MarkFlagged(ctx context.Context, project, logID string) error {
	body, err := json.Marshal(map[string]string{"project": project})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/events/"+logID+"/flag", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics sink returned status %d flagging log %s", resp.StatusCode, logID)
	}
	return nil
}
