package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func providerStub(t *testing.T, wantPath string, status int, body map[string]any) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestHTTPClient_PlaceCall(t *testing.T) {
	srv, captured := providerStub(t, "/v1/calls", http.StatusOK, map[string]any{"callId": "abc-123"})

	c := NewHTTPClient(srv.URL, "secret-key")
	id, err := c.PlaceCall(context.Background(), PlaceCallRequest{
		To: "+15551230001", From: "+15559990000",
		AnswerURL: "http://example/answer", Record: true,
	})
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if id != "abc-123" {
		t.Errorf("call id = %q", id)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer secret-key" {
		t.Errorf("auth header = %q", got)
	}
}

func TestHTTPClient_PlaceCallRejectsEmptyID(t *testing.T) {
	srv, _ := providerStub(t, "/v1/calls", http.StatusOK, map[string]any{})

	c := NewHTTPClient(srv.URL, "")
	if _, err := c.PlaceCall(context.Background(), PlaceCallRequest{To: "+15551230001"}); err == nil {
		t.Fatal("expected error for missing call id")
	}
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	srv, _ := providerStub(t, "/v1/synthesize", http.StatusBadGateway, map[string]any{})

	c := NewHTTPClient(srv.URL, "")
	if _, err := c.Synthesize(context.Background(), "female-elderly", "hello"); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestHTTPClient_Report(t *testing.T) {
	srv, _ := providerStub(t, "/v1/reports", http.StatusCreated, map[string]any{"reportId": "rep-9"})

	c := NewHTTPClient(srv.URL, "k")
	id, err := c.Report(context.Background(), Report{CallID: "call-1", Outcome: "successful_waste"})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if id != "rep-9" {
		t.Errorf("report id = %q", id)
	}
}
