package fallback

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/klubi/inkwell/internal/store"
)

func TestSetGetRemove(t *testing.T) {
	s := NewMemory(0)

	if err := s.SetItem("theme", "dark"); err != nil {
		t.Fatalf("unexpected error on SetItem: %v", err)
	}
	v, ok := s.GetItem("theme")
	if !ok || v != "dark" {
		t.Fatalf("expected (dark, true), got (%q, %v)", v, ok)
	}

	if err := s.RemoveItem("theme"); err != nil {
		t.Fatalf("unexpected error on RemoveItem: %v", err)
	}
	if _, ok := s.GetItem("theme"); ok {
		t.Fatal("expected theme to be gone after RemoveItem")
	}
	if err := s.RemoveItem("theme"); err != nil {
		t.Fatalf("expected nil removing absent key, got %v", err)
	}
}

func TestQuota(t *testing.T) {
	s := NewMemory(16)

	if err := s.SetItem("a", "1234567"); err != nil {
		t.Fatalf("unexpected error under quota: %v", err)
	}

	err := s.SetItem("big", strings.Repeat("x", 32))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("expected error to wrap store.ErrQuotaExceeded, got %v", err)
	}
	if _, ok := s.GetItem("big"); ok {
		t.Fatal("rejected write must not be visible")
	}
	if got := s.UsedBytes(); got != 8 {
		t.Errorf("expected 8 used bytes, got %d", got)
	}

	// Overwriting with a smaller value frees space.
	if err := s.SetItem("a", "1"); err != nil {
		t.Fatalf("unexpected error shrinking value: %v", err)
	}
	if got := s.UsedBytes(); got != 2 {
		t.Errorf("expected 2 used bytes, got %d", got)
	}
}

func TestKeysAndClearPrefix(t *testing.T) {
	s := NewMemory(0)
	for _, k := range []string{"project:b", "project:a", "settings"} {
		if err := s.SetItem(k, "v"); err != nil {
			t.Fatalf("unexpected error on SetItem(%s): %v", k, err)
		}
	}

	if diff := cmp.Diff([]string{"project:a", "project:b"}, s.Keys("project:")); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	if err := s.ClearPrefix("project:"); err != nil {
		t.Fatalf("unexpected error on ClearPrefix: %v", err)
	}
	if diff := cmp.Diff([]string{"settings"}, s.Keys("")); diff != "" {
		t.Errorf("Keys after ClearPrefix mismatch (-want +got):\n%s", diff)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("unexpected error on Clear: %v", err)
	}
	if s.Len() != 0 || s.UsedBytes() != 0 {
		t.Errorf("expected empty store, got len=%d used=%d", s.Len(), s.UsedBytes())
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "local.json")

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("unexpected error on Open: %v", err)
	}
	if err := s.SetItem("x", "9"); err != nil {
		t.Fatalf("unexpected error on SetItem: %v", err)
	}

	reopened, err := Open(path, 0)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	if v, ok := reopened.GetItem("x"); !ok || v != "9" {
		t.Fatalf("expected (9, true) after reopen, got (%q, %v)", v, ok)
	}
	if reopened.UsedBytes() != 2 {
		t.Errorf("expected used bytes recomputed to 2, got %d", reopened.UsedBytes())
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	if _, err := Open(path, 0); err == nil {
		t.Fatal("expected an error decoding a corrupt file, got nil")
	}
}
