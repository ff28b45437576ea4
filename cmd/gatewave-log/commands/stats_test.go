package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gatewave/gatewave-go/pkg/log"
)

func TestStatsCountsByLayer(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryFrame},
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryFrame},
		{Timestamp: ts, Layer: log.LayerAPI, Category: log.CategoryCommand},
		{Timestamp: ts, Layer: log.LayerClient, Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "TRANSPORT:") {
		t.Error("expected TRANSPORT layer in output")
	}
	if !strings.Contains(output, "API:") {
		t.Error("expected API layer in output")
	}
	if !strings.Contains(output, "CLIENT:") {
		t.Error("expected CLIENT layer in output")
	}
	if !strings.Contains(output, "Total Events: 4") {
		t.Errorf("expected 4 total events, got:\n%s", output)
	}
}

func TestStatsCountsConnections(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-aaaa-bbbb", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "data"}, DeviceID: "garage-1"},
		{Timestamp: ts.Add(time.Second), ConnectionID: "conn-aaaa-bbbb", Category: log.CategoryFrame,
			Frame: &log.FrameEvent{Type: "ka"}},
		{Timestamp: ts, ConnectionID: "conn-cccc-dddd", Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Connections: 2") {
		t.Errorf("expected 2 connections, got:\n%s", output)
	}
	if !strings.Contains(output, "[conn-aaa") {
		t.Error("expected conn-aaaa connection details")
	}
	if !strings.Contains(output, "Frames: 2 (1 data)") {
		t.Errorf("expected frame breakdown, got:\n%s", output)
	}
	if !strings.Contains(output, "garage-1") {
		t.Errorf("expected device list, got:\n%s", output)
	}
}

func TestStatsKeepAlives(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryFrame, Frame: &log.FrameEvent{Type: "ka"}},
		{Timestamp: ts, Category: log.CategoryFrame, Frame: &log.FrameEvent{Type: "ka"}},
		{Timestamp: ts, Category: log.CategoryFrame, Frame: &log.FrameEvent{Type: "data"}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	if !strings.Contains(buf.String(), "Keepalives: 2") {
		t.Errorf("expected 2 keepalives, got:\n%s", buf.String())
	}
}

func TestStatsTimeRange(t *testing.T) {
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: start, Category: log.CategoryState},
		{Timestamp: end, Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Duration:") {
		t.Error("expected Duration in output")
	}
	if !strings.Contains(output, "1h0m0s") {
		t.Errorf("expected 1h0m0s duration, got:\n%s", output)
	}
}

func TestStatsErrorCount(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryState},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 1"}},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 2"}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	if !strings.Contains(buf.String(), "Errors: 2") {
		t.Errorf("expected 2 errors, got:\n%s", buf.String())
	}
}
