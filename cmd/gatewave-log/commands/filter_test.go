package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatewave/gatewave-go/pkg/log"
)

func readAllEvents(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestFilterByConnection(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-a", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data"}},
		{Timestamp: ts, ConnectionID: "conn-b", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data"}},
		{Timestamp: ts, ConnectionID: "conn-a", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "ka"}},
	}

	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.gwlog")

	err := RunFilter(path, FilterOptions{Output: out, ConnID: "conn-a"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	filtered := readAllEvents(t, out)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 events, got %d", len(filtered))
	}
	for _, e := range filtered {
		if e.ConnectionID != "conn-a" {
			t.Errorf("unexpected connection ID: %s", e.ConnectionID)
		}
	}
}

func TestFilterByDeviceAndFrameType(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, DeviceID: "garage-1", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data"}},
		{Timestamp: ts, DeviceID: "garage-2", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data"}},
		{Timestamp: ts, DeviceID: "garage-1", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "ka"}},
	}

	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.gwlog")

	err := RunFilter(path, FilterOptions{
		Output:    out,
		DeviceID:  "garage-1",
		FrameType: "data",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	filtered := readAllEvents(t, out)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].DeviceID != "garage-1" || filtered[0].Frame.Type != "data" {
		t.Errorf("wrong event survived the filter: %+v", filtered[0])
	}
}

func TestFilterBySubscriptionID(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data", SubscriptionID: "sub-1"}},
		{Timestamp: ts, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data", SubscriptionID: "sub-2"}},
		{Timestamp: ts, Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.gwlog")

	err := RunFilter(path, FilterOptions{Output: out, SubID: "sub-2"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	filtered := readAllEvents(t, out)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 event, got %d", len(filtered))
	}
	if filtered[0].Frame.SubscriptionID != "sub-2" {
		t.Errorf("wrong event survived the filter: %+v", filtered[0])
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: base, Category: log.CategoryState},
		{Timestamp: base.Add(time.Hour), Category: log.CategoryState},
		{Timestamp: base.Add(2 * time.Hour), Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.gwlog")

	err := RunFilter(path, FilterOptions{
		Output:    out,
		TimeStart: base.Add(30 * time.Minute).Format(time.RFC3339),
		TimeEnd:   base.Add(90 * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	filtered := readAllEvents(t, out)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 event, got %d", len(filtered))
	}
}

func TestFilterRejectsBadTime(t *testing.T) {
	path := createTestLogFile(t, nil)
	out := filepath.Join(t.TempDir(), "filtered.gwlog")

	err := RunFilter(path, FilterOptions{Output: out, TimeStart: "yesterday"})
	if err == nil {
		t.Fatal("expected error for invalid time format")
	}
}
