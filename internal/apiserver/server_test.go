package apiserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/fallback"
	"github.com/klubi/inkwell/internal/storage"
	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newTestServer(t *testing.T, opts storage.Options) (*httptest.Server, *storage.Service) {
	t.Helper()
	svc := storage.New(opts)
	svc.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitForStorage(ctx); err != nil {
		t.Fatalf("unexpected error on WaitForStorage: %v", err)
	}

	ts := httptest.NewServer(NewServer("", svc, zap.NewNop()).Handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close(context.Background())
	})
	return ts, svc
}

func durableOptions() storage.Options {
	b := store.NewMemoryStore()
	return storage.Options{Open: func(context.Context) (store.Backend, error) { return b, nil }}
}

func do(t *testing.T, method, url, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error building request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error on %s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts, _ := newTestServer(t, durableOptions())

	expectStatus(t, do(t, "GET", ts.URL+"/healthz", "", ""), http.StatusOK)
	expectStatus(t, do(t, "GET", ts.URL+"/readyz", "", ""), http.StatusOK)

	resp := do(t, "GET", ts.URL+"/metrics", "", "")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "inkwell_storage_hydrated") {
		t.Error("expected storage metrics to be exported")
	}
}

func TestItemsLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, durableOptions())
	base := ts.URL + "/api/v1/items"

	resp := do(t, "PUT", base+"/drafts/chapter-1", "text/plain", "Call me Ishmael.")
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, "GET", base+"/drafts/chapter-1", "", "")
	expectStatus(t, resp, http.StatusOK)
	var item v1.Item
	decode(t, resp, &item)
	if diff := cmp.Diff(v1.Item{Key: "drafts/chapter-1", Value: "Call me Ishmael."}, item); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, do(t, "PUT", base+"/drafts/chapter-2?wait=true", "text/plain", "x"), http.StatusOK)
	expectStatus(t, do(t, "PUT", base+"/settings", "text/plain", "{}"), http.StatusOK)

	resp = do(t, "GET", base+"?prefix=drafts/", "", "")
	expectStatus(t, resp, http.StatusOK)
	var list v1.KeyList
	decode(t, resp, &list)
	if diff := cmp.Diff([]string{"drafts/chapter-1", "drafts/chapter-2"}, list.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, do(t, "DELETE", base+"/settings", "", ""), http.StatusNoContent)
	expectStatus(t, do(t, "GET", base+"/settings", "", ""), http.StatusNotFound)
	expectStatus(t, do(t, "GET", base+"/settings?consistent=true", "", ""), http.StatusNotFound)

	expectStatus(t, do(t, "DELETE", base+"?prefix=drafts/", "", ""), http.StatusNoContent)
	resp = do(t, "GET", base, "", "")
	decode(t, resp, &list)
	if len(list.Keys) != 0 {
		t.Errorf("expected no keys after clear, got %v", list.Keys)
	}
}

func TestProjectsLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, durableOptions())
	base := ts.URL + "/api/v1/projects"

	resp := do(t, "POST", base, "application/json", `{"data":"first draft"}`)
	expectStatus(t, resp, http.StatusCreated)
	var created v1.Project
	decode(t, resp, &created)
	if created.ID == "" {
		t.Fatal("expected a generated project id")
	}

	expectStatus(t, do(t, "PUT", base+"/"+created.ID, "application/json", `{"data":"second draft"}`), http.StatusOK)

	resp = do(t, "GET", base+"/"+created.ID, "", "")
	expectStatus(t, resp, http.StatusOK)
	var got v1.Project
	decode(t, resp, &got)
	if got.Data != "second draft" {
		t.Errorf("expected second draft, got %q", got.Data)
	}

	resp = do(t, "GET", base, "", "")
	var list v1.ProjectList
	decode(t, resp, &list)
	if diff := cmp.Diff([]string{created.ID}, list.IDs); diff != "" {
		t.Errorf("project ids mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, do(t, "DELETE", base+"/"+created.ID, "", ""), http.StatusNoContent)
	expectStatus(t, do(t, "GET", base+"/"+created.ID, "", ""), http.StatusNotFound)
	expectStatus(t, do(t, "POST", base, "application/json", `not json`), http.StatusBadRequest)
}

func TestBlobsLifecycle(t *testing.T) {
	ts, _ := newTestServer(t, durableOptions())
	base := ts.URL + "/api/v1/blobs"

	expectStatus(t, do(t, "PUT", base+"/images/cover.png", "image/png", "\x89PNG"), http.StatusNoContent)

	resp := do(t, "GET", base+"/images/cover.png", "", "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "\x89PNG" {
		t.Errorf("unexpected blob body %q", body)
	}

	resp = do(t, "GET", base, "", "")
	var list v1.BlobList
	decode(t, resp, &list)
	if diff := cmp.Diff([]string{"images/cover.png"}, list.Keys); diff != "" {
		t.Errorf("blob keys mismatch (-want +got):\n%s", diff)
	}

	expectStatus(t, do(t, "DELETE", base+"/images/cover.png", "", ""), http.StatusNoContent)
	expectStatus(t, do(t, "GET", base+"/images/cover.png", "", ""), http.StatusNotFound)
}

func TestQuotaMapsToInsufficientStorage(t *testing.T) {
	ts, _ := newTestServer(t, storage.Options{
		Open: func(context.Context) (store.Backend, error) {
			return nil, errors.New("unavailable")
		},
		Fallback: fallback.NewMemory(64),
	})

	resp := do(t, "PUT", ts.URL+"/api/v1/items/big", "text/plain", strings.Repeat("x", 200))
	expectStatus(t, resp, http.StatusInsufficientStorage)

	var status v1.Status
	decode(t, do(t, "GET", ts.URL+"/api/v1/status", "", ""), &status)
	if !status.FallbackMode {
		t.Error("expected status to report fallback mode")
	}
}

func TestMigrateEndpoint(t *testing.T) {
	opts := durableOptions()
	legacy := fallback.NewMemory(0)
	opts.Legacy = legacy
	ts, _ := newTestServer(t, opts)

	resp := do(t, "POST", ts.URL+"/api/v1/migrate", "", "")
	expectStatus(t, resp, http.StatusOK)
	var report v1.MigrationReport
	decode(t, resp, &report)
	if report.Ran {
		t.Errorf("expected nothing to migrate, got %+v", report)
	}
}

func TestEventsStream(t *testing.T) {
	ts, _ := newTestServer(t, storage.Options{
		Open: func(context.Context) (store.Backend, error) {
			return nil, errors.New("unavailable")
		},
		Fallback: fallback.NewMemory(16),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error opening event stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	// The stream is subscribed once headers arrive; trigger a quota event.
	do(t, "PUT", ts.URL+"/api/v1/items/big", "text/plain", strings.Repeat("x", 100))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt v1.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("unexpected error decoding event: %v", err)
		}
		if evt.Type == v1.EventQuotaExceeded {
			if evt.Key != "big" {
				t.Errorf("expected quota event for big, got %q", evt.Key)
			}
			return
		}
	}
	t.Fatalf("stream ended without a quota event: %v", scanner.Err())
}
