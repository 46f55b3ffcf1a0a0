package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to a real telephony provider's REST API. One client
// serves all four collaborator roles so the gateway can wire a single
// value everywhere.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	var out struct {
		CallID string `json:"callId"`
	}
	payload := map[string]any{
		"to":        req.To,
		"from":      req.From,
		"answerUrl": req.AnswerURL,
		"statusUrl": req.StatusURL,
		"record":    req.Record,
	}
	if err := c.post(ctx, "/v1/calls", payload, &out); err != nil {
		return "", err
	}
	if out.CallID == "" {
		return "", fmt.Errorf("provider returned no call id")
	}
	return out.CallID, nil
}

func (c *HTTPClient) Synthesize(ctx context.Context, voice, text string) (string, error) {
	var out struct {
		AudioURL string `json:"audioUrl"`
	}
	payload := map[string]any{"voice": voice, "text": text}
	if err := c.post(ctx, "/v1/synthesize", payload, &out); err != nil {
		return "", err
	}
	if out.AudioURL == "" {
		return "", fmt.Errorf("provider returned no audio url")
	}
	return out.AudioURL, nil
}

func (c *HTTPClient) Submit(ctx context.Context, callID, recordingURL string) error {
	payload := map[string]any{"callId": callID, "recordingUrl": recordingURL}
	return c.post(ctx, "/v1/transcriptions", payload, nil)
}

func (c *HTTPClient) Report(ctx context.Context, r Report) (string, error) {
	var out struct {
		ReportID string `json:"reportId"`
	}
	if err := c.post(ctx, "/v1/reports", r, &out); err != nil {
		return "", err
	}
	return out.ReportID, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
