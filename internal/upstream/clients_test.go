package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient() *Client {
	return NewClient(5*time.Second, fastRetryConfig(0))
}

// --- ScraperClient tests ---

func TestScrapeSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		var req ScrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "best widgets" {
			t.Errorf("unexpected query: %q", req.Query)
		}
		if req.Location != "United States" {
			t.Errorf("unexpected location: %q", req.Location)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success":          true,
			"ai_overview_text": "widgets are great",
			"source_links":     []string{"https://example.com"},
		})
	}))
	defer ts.Close()

	c := NewScraperClient(ts.URL, testClient())
	result, err := c.Scrape(context.Background(), ScrapeRequest{
		Query:    "best widgets",
		Location: "United States",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "widgets are great" {
		t.Errorf("Text = %q", result.Text)
	}
	if len(result.SourceLinks) != 1 {
		t.Errorf("SourceLinks = %v", result.SourceLinks)
	}
}

func TestScrapeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "success false", body: `{"success":false,"ai_overview_text":"text"}`},
		{name: "empty text", body: `{"success":true,"ai_overview_text":""}`},
		{name: "whitespace text", body: `{"success":true,"ai_overview_text":"  "}`},
		{name: "missing fields", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := NewScraperClient(ts.URL, testClient())
			_, err := c.Scrape(context.Background(), ScrapeRequest{Query: "q"})
			if !errors.Is(err, ErrInvalidShape) {
				t.Errorf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}

// --- AnalyzerClient tests ---

func TestProcessReturnsJobID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["entityId"] == "" || req["source"] == "" {
			t.Errorf("payload incomplete: %v", req)
		}
		w.Write([]byte(`{"jobId":"remote-42"}`))
	}))
	defer ts.Close()

	c := NewAnalyzerClient(ts.URL, testClient())
	jobID, err := c.Process(context.Background(), "prod-1", "google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "remote-42" {
		t.Errorf("jobID = %q", jobID)
	}
}

func TestProcessMissingJobIDIsContractBreak(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := NewAnalyzerClient(ts.URL, testClient())
	_, err := c.Process(context.Background(), "prod-1", "google")
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape, got %v", err)
	}
}

func TestJobResultClassifiesByStatusField(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
		wantErrMsg string
	}{
		{
			name:       "pending",
			body:       `{"status":"pending"}`,
			wantStatus: JobPending,
		},
		{
			name:       "completed with payload",
			body:       `{"status":"completed","data":{"ai_overview_text":"done"}}`,
			wantStatus: JobCompleted,
		},
		{
			name:       "failed with message",
			body:       `{"status":"failed","error_message":"model crashed"}`,
			wantStatus: JobFailed,
			wantErrMsg: "model crashed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/job-result/remote-42" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				// All states come back as HTTP 200.
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := NewAnalyzerClient(ts.URL, testClient())
			status, err := c.JobResult(context.Background(), "remote-42")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", status.Status, tt.wantStatus)
			}
			if status.ErrorMessage != tt.wantErrMsg {
				t.Errorf("ErrorMessage = %q, want %q", status.ErrorMessage, tt.wantErrMsg)
			}
		})
	}
}

func TestJobResultUnknownStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"exploded"}`))
	}))
	defer ts.Close()

	c := NewAnalyzerClient(ts.URL, testClient())
	_, err := c.JobResult(context.Background(), "remote-42")
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape, got %v", err)
	}
}

func TestEntityStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"processing"}`))
	}))
	defer ts.Close()

	c := NewAnalyzerClient(ts.URL, testClient())
	status, err := c.EntityStatus(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != "processing" {
		t.Errorf("Status = %q", status.Status)
	}
}

func TestAnalyzerTrimsTrailingSlash(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"jobId":"j"}`))
	}))
	defer ts.Close()

	c := NewAnalyzerClient(ts.URL+"/", testClient())
	if _, err := c.Process(context.Background(), "p", "google"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
