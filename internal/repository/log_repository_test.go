package repository

import (
	"context"
	"testing"
	"time"

	"github.com/dwalsh/galley/internal/domain"
)

func TestLogRepository_RecordAndList(t *testing.T) {
	conn := testConn(t)
	repo := NewLogRepository(conn.Pool)
	ctx := context.Background()

	host := "node-" + shortID()
	stack := "trace line 1\ntrace line 2"
	entries := []domain.LogEntry{
		{Host: host, Level: "INFO", Message: "worker started"},
		{Host: host, Level: "ERROR", Message: "job failed", Stacktrace: &stack},
	}
	for _, entry := range entries {
		if err := repo.Record(ctx, entry); err != nil {
			t.Fatalf("failed to record log entry: %v", err)
		}
	}

	listed, err := repo.List(ctx, domain.LogFilter{Levels: []string{"ERROR"}})
	if err != nil {
		t.Fatalf("failed to list log entries: %v", err)
	}
	found := false
	for _, entry := range listed {
		if entry.Level != "ERROR" {
			t.Errorf("expected only ERROR entries, got %q", entry.Level)
		}
		if entry.Host == host {
			found = true
			if entry.Stacktrace == nil || *entry.Stacktrace != stack {
				t.Errorf("expected stacktrace preserved, got %v", entry.Stacktrace)
			}
		}
	}
	if !found {
		t.Errorf("expected recorded ERROR entry from %q in the list", host)
	}
}

func TestLogRepository_ListTimeWindow(t *testing.T) {
	conn := testConn(t)
	repo := NewLogRepository(conn.Pool)
	ctx := context.Background()

	host := "node-" + shortID()
	if err := repo.Record(ctx, domain.LogEntry{Host: host, Level: "INFO", Message: "tick"}); err != nil {
		t.Fatalf("failed to record log entry: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	cutoff := time.Now().Add(-time.Minute)
	listed, err := repo.List(ctx, domain.LogFilter{Started: &past, Ended: &cutoff})
	if err != nil {
		t.Fatalf("failed to list log entries: %v", err)
	}
	for _, entry := range listed {
		if entry.Host == host {
			t.Errorf("expected entry outside the window to be excluded")
		}
	}
}

func TestLogRepository_ListLimit(t *testing.T) {
	conn := testConn(t)
	repo := NewLogRepository(conn.Pool)
	ctx := context.Background()

	host := "node-" + shortID()
	for i := 0; i < 3; i++ {
		if err := repo.Record(ctx, domain.LogEntry{Host: host, Level: "DEBUG", Message: "tick"}); err != nil {
			t.Fatalf("failed to record log entry: %v", err)
		}
	}

	listed, err := repo.List(ctx, domain.LogFilter{Levels: []string{"DEBUG"}, Limit: 2})
	if err != nil {
		t.Fatalf("failed to list log entries: %v", err)
	}
	if len(listed) > 2 {
		t.Errorf("expected at most 2 entries, got %d", len(listed))
	}
}
