package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	sink, err := newCSVSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	row := flattenEvent(sampleEvent(), "Tech", "past", flattenNow)
	if err := sink.WriteRow(row); err != nil {
		t.Fatalf("write row: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	wantHeader := "group_category,group_age_days,group.name,group.id,lat,lon," +
		"event.waitlist_count,event.yes_rsvp_count,event_day_of_week," +
		"event_hour_of_day,event_datetime,event.name,event.id,event.status"
	if lines[0] != wantHeader {
		t.Fatalf("header = %q", lines[0])
	}
	if got := strings.Count(lines[1], ","); got != 13 {
		t.Fatalf("data row has %d commas, want 13", got)
	}
}

func TestSinkCreatesMissingOutputDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "events.csv")

	done := make(chan error, 1)
	go func() {
		sink, err := newCSVSink(path)
		if err == nil {
			err = sink.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sink in fresh directory: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("newCSVSink did not return for a nested output path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "group_category,") {
		t.Fatalf("missing header in %q", b)
	}
}

func TestSinkTruncatesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte("stale,leftover,data\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sink, err := newCSVSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "stale") {
		t.Fatal("previous run's rows survived the truncate")
	}
}

func TestSinkLockRejectsSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	first, err := newCSVSink(path)
	if err != nil {
		t.Fatalf("first sink: %v", err)
	}

	if _, err := newCSVSink(path); err == nil {
		t.Fatal("second writer acquired the lock while the first held it")
	}

	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := newCSVSink(path)
	if err != nil {
		t.Fatalf("sink after release: %v", err)
	}
	second.Close()
}

func TestStaleLockIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, []byte(`{"pid":0,"time":0}`), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * lockTTL)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	sink, err := newCSVSink(path)
	if err != nil {
		t.Fatalf("expected stale lock takeover, got %v", err)
	}
	sink.Close()
}
