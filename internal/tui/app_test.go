package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		values []string
		want   bool
	}{
		{"empty filter", "", []string{"anything"}, true},
		{"case insensitive", "draft", []string{"Notes/DRAFT-1"}, true},
		{"second value", "quota", []string{"storage:ready", "storage is full: quota"}, true},
		{"no match", "zzz", []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.filter, tt.values...); got != tt.want {
				t.Errorf("matchesFilter(%q, %v) = %v, want %v", tt.filter, tt.values, got, tt.want)
			}
		})
	}
}

func TestStatusLine(t *testing.T) {
	if got := statusLine(nil); !strings.Contains(got, "connecting") {
		t.Errorf("expected connecting, got %q", got)
	}

	got := statusLine(&v1.Status{FallbackMode: true})
	if !strings.Contains(got, "fallback") || !strings.Contains(got, "hydrating") {
		t.Errorf("unexpected fallback line %q", got)
	}

	got = statusLine(&v1.Status{Hydrated: true, CachedKeys: 3, QueueDepth: 2})
	for _, want := range []string{"durable", "3 keys", "2 queued"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestAppendEventBoundsLog(t *testing.T) {
	var events []v1.Event
	for i := 0; i < maxEvents+10; i++ {
		events = appendEvent(events, v1.Event{Type: v1.EventWriteFailed, Key: fmt.Sprintf("k%d", i)})
	}
	if len(events) != maxEvents {
		t.Fatalf("expected %d events, got %d", maxEvents, len(events))
	}
	if events[0].Key != "k10" {
		t.Errorf("expected oldest kept event k10, got %s", events[0].Key)
	}
	if last := events[len(events)-1].Key; last != fmt.Sprintf("k%d", maxEvents+9) {
		t.Errorf("unexpected newest event %s", last)
	}
}

func TestFormatAge(t *testing.T) {
	if got := formatAge(time.Time{}); got != "-" {
		t.Errorf("expected -, got %q", got)
	}
	if got := formatAge(time.Now().Add(-3 * time.Hour)); got != "3h" {
		t.Errorf("expected 3h, got %q", got)
	}
}
