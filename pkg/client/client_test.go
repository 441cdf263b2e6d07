package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/apiserver"
	"github.com/klubi/inkwell/internal/fallback"
	"github.com/klubi/inkwell/internal/storage"
	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newTestClient(t *testing.T, opts storage.Options) *Client {
	t.Helper()
	svc := storage.New(opts)
	svc.Start(context.Background())

	ts := httptest.NewServer(apiserver.NewServer("", svc, zap.NewNop()).Handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close(context.Background())
	})
	return New(ts.URL + "/")
}

func memoryBackend() storage.Options {
	b := store.NewMemoryStore()
	return storage.Options{Open: func(context.Context) (store.Backend, error) { return b, nil }}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestItems(t *testing.T) {
	c := newTestClient(t, memoryBackend())
	ctx := testContext(t)

	if err := c.Healthz(ctx); err != nil {
		t.Fatalf("unexpected error on Healthz: %v", err)
	}
	if err := c.SetItem(ctx, "notes/a b", "one", true); err != nil {
		t.Fatalf("unexpected error on SetItem: %v", err)
	}
	if err := c.SetItem(ctx, "notes/c", "two", false); err != nil {
		t.Fatalf("unexpected error on SetItem: %v", err)
	}

	v, ok, err := c.GetItem(ctx, "notes/a b", true)
	if err != nil || !ok || v != "one" {
		t.Fatalf("expected notes/a b=one, got %q (present %v, err %v)", v, ok, err)
	}

	keys, err := c.Keys(ctx, "notes/")
	if err != nil {
		t.Fatalf("unexpected error on Keys: %v", err)
	}
	if diff := cmp.Diff([]string{"notes/a b", "notes/c"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := c.RemoveItem(ctx, "notes/c"); err != nil {
		t.Fatalf("unexpected error on RemoveItem: %v", err)
	}
	if _, ok, err := c.GetItem(ctx, "notes/c", false); err != nil || ok {
		t.Errorf("expected notes/c to be gone, got present=%v err=%v", ok, err)
	}

	if err := c.Clear(ctx, ""); err != nil {
		t.Fatalf("unexpected error on Clear: %v", err)
	}
	keys, err = c.Keys(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error on Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys after Clear, got %v", keys)
	}
}

func TestProjectsAndBlobs(t *testing.T) {
	c := newTestClient(t, memoryBackend())
	ctx := testContext(t)

	p, err := c.CreateProject(ctx, "draft")
	if err != nil {
		t.Fatalf("unexpected error on CreateProject: %v", err)
	}
	if _, err := c.SaveProject(ctx, p.ID, "final"); err != nil {
		t.Fatalf("unexpected error on SaveProject: %v", err)
	}
	got, err := c.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error on GetProject: %v", err)
	}
	if got.Data != "final" {
		t.Errorf("expected final, got %q", got.Data)
	}
	ids, err := c.ListProjects(ctx)
	if err != nil {
		t.Fatalf("unexpected error on ListProjects: %v", err)
	}
	if diff := cmp.Diff([]string{p.ID}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if err := c.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error on DeleteProject: %v", err)
	}
	if _, err := c.GetProject(ctx, p.ID); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := c.PutBlob(ctx, "cover.jpg", []byte{0xff, 0xd8, 0xff}, "image/jpeg"); err != nil {
		t.Fatalf("unexpected error on PutBlob: %v", err)
	}
	data, mimeType, err := c.GetBlob(ctx, "cover.jpg")
	if err != nil {
		t.Fatalf("unexpected error on GetBlob: %v", err)
	}
	if mimeType != "image/jpeg" || len(data) != 3 {
		t.Errorf("unexpected blob %v (%s)", data, mimeType)
	}
	blobs, err := c.ListBlobs(ctx)
	if err != nil {
		t.Fatalf("unexpected error on ListBlobs: %v", err)
	}
	if diff := cmp.Diff([]string{"cover.jpg"}, blobs); diff != "" {
		t.Errorf("blob keys mismatch (-want +got):\n%s", diff)
	}
	if err := c.DeleteBlob(ctx, "cover.jpg"); err != nil {
		t.Fatalf("unexpected error on DeleteBlob: %v", err)
	}
}

func TestQuotaAndEvents(t *testing.T) {
	c := newTestClient(t, storage.Options{
		Open:     func(context.Context) (store.Backend, error) { return nil, errors.New("unavailable") },
		Fallback: fallback.NewMemory(16),
	})
	ctx := testContext(t)

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("unexpected error on Events: %v", err)
	}

	err = c.SetItem(ctx, "big", strings.Repeat("x", 100), false)
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected a quota error, got %v", err)
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("event stream closed early")
			}
			if evt.Type == v1.EventQuotaExceeded {
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for quota event")
		}
	}
}

func TestStatusAndMigrate(t *testing.T) {
	c := newTestClient(t, memoryBackend())
	ctx := testContext(t)

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("unexpected error on Status: %v", err)
	}
	if st.FallbackMode {
		t.Error("expected durable mode")
	}
	report, err := c.Migrate(ctx)
	if err != nil {
		t.Fatalf("unexpected error on Migrate: %v", err)
	}
	if report.Ran {
		t.Errorf("expected no migration without a legacy store, got %+v", report)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "item not found"}
	if err.Error() != "api error (status 404): item not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsNotFound(err) || IsQuotaExceeded(err) {
		t.Error("expected a 404 to be classified as not found only")
	}
}
