package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klubi/inkwell/internal/fallback"
	"github.com/klubi/inkwell/internal/storage"
	"github.com/klubi/inkwell/internal/store"
)

func TestWarnOnEventsSeesBootEvents(t *testing.T) {
	svc := storage.New(storage.Options{
		Open:     func(context.Context) (store.Backend, error) { return nil, errors.New("database is locked") },
		Fallback: fallback.NewMemory(0),
	})
	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		warnOnEvents(context.Background(), &out, events)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Start(ctx)
	if err := svc.WaitForStorage(ctx); err != nil {
		t.Fatalf("unexpected error on WaitForStorage: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("unexpected error on Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("warnOnEvents did not return after the service closed")
	}
	for _, want := range []string{"using fallback store: database is locked", "storage ready"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output, got %q", want, out.String())
		}
	}
}
