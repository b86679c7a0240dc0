package accesslog

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func sampleEntry() *Entry {
	return &Entry{
		Timestamp:     time.Date(2016, 4, 15, 20, 17, 0, 310_000_000, time.UTC),
		RequestID:     "req-1",
		Method:        "GET",
		Path:          "/shelf",
		Protocol:      "HTTP/1.1",
		ResponseCode:  200,
		BytesReceived: 18,
		BytesSent:     30,
		Duration:      5 * time.Millisecond,
		RemoteAddress: "203.0.113.9",
		UpstreamHost:  "10.0.0.1:80",
	}
}

func TestFormatEntry(t *testing.T) {
	got := FormatEntry(sampleEntry())
	want := `[2016-04-15T20:17:00.310Z] "GET /shelf HTTP/1.1" 200 18 30 5 "203.0.113.9" "req-1" "10.0.0.1:80" -`
	if got != want {
		t.Fatalf("FormatEntry =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatEntryFailure(t *testing.T) {
	entry := sampleEntry()
	entry.ResponseCode = 0
	entry.FailureReason = "UH"

	got := FormatEntry(entry)
	if !strings.Contains(got, `" - `) {
		t.Fatalf("missing dash for absent response code: %s", got)
	}
	if !strings.HasSuffix(got, " UH") {
		t.Fatalf("missing failure reason: %s", got)
	}
}

func TestWriterLog(t *testing.T) {
	var sb strings.Builder
	log := NewWriterLog(&sb, testLogger())
	log.Log(sampleEntry())

	if !strings.HasSuffix(sb.String(), "\n") {
		t.Fatal("writer sink did not terminate the line")
	}
	if !strings.Contains(sb.String(), `"GET /shelf HTTP/1.1"`) {
		t.Fatalf("line = %q", sb.String())
	}
}

func newTestStore(t *testing.T) *SQLiteLog {
	t.Helper()
	store, err := NewSQLiteLog(filepath.Join(t.TempDir(), "access.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteLog: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteLogInsertAndCount(t *testing.T) {
	store := newTestStore(t)

	store.Log(sampleEntry())
	store.Log(sampleEntry())

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count = %d, want 2", count)
	}
}

func TestSQLiteLogPrune(t *testing.T) {
	store := newTestStore(t)

	old := sampleEntry()
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	store.Log(old)

	fresh := sampleEntry()
	fresh.Timestamp = time.Now()
	store.Log(fresh)

	deleted, err := store.PruneOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	count, _ := store.Count()
	if count != 1 {
		t.Fatalf("remaining = %d, want 1", count)
	}
}

func TestRetentionSchedulerRunOnce(t *testing.T) {
	store := newTestStore(t)

	old := sampleEntry()
	old.Timestamp = time.Now().Add(-2 * time.Hour)
	store.Log(old)

	scheduler := NewRetentionScheduler(store, RetentionConfig{MaxAge: time.Hour}, testLogger())
	scheduler.RunOnce()

	count, _ := store.Count()
	if count != 0 {
		t.Fatalf("entries after prune = %d, want 0", count)
	}
}

func TestRetentionSchedulerRejectsBadCron(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewRetentionScheduler(store, RetentionConfig{Schedule: "not a cron", MaxAge: time.Hour}, testLogger())
	if err := scheduler.Start(); err == nil {
		t.Fatal("Start accepted a malformed schedule")
	}
}

func TestRetentionSchedulerEmptyScheduleIsNoop(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewRetentionScheduler(store, RetentionConfig{MaxAge: time.Hour}, testLogger())
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start with empty schedule: %v", err)
	}
	scheduler.Stop()
}

func TestMultiLog(t *testing.T) {
	var a, b strings.Builder
	log := MultiLog{NewWriterLog(&a, testLogger()), NewWriterLog(&b, testLogger())}
	log.Log(sampleEntry())

	if a.Len() == 0 || b.Len() == 0 {
		t.Fatal("entry not fanned out to every sink")
	}
}
