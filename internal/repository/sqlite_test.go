package repository

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestDB(t *testing.T) *ListDB {
	t.Helper()
	db := &ListDB{}
	if err := db.InitDB(":memory:"); err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func feed(entries ...Entry) <-chan Entry {
	stream := make(chan Entry, len(entries))
	for _, e := range entries {
		stream <- e
	}
	close(stream)
	return stream
}

func TestStreamSync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// First run lists two domains.
	_, err := db.StreamSync(ctx, feed(
		Entry{Domain: "old-entry.com", Action: ActionBlock},
		Entry{Domain: "keep-me.com", Action: ActionBlock},
	), "urlhaus")
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// 'old-entry.com' is missing from the second run and must be swept.
	count, err := db.StreamSync(ctx, feed(
		Entry{Domain: "keep-me.com", Action: ActionBlock},
		Entry{Domain: "new-entry.com", Action: ActionBlock},
	), "urlhaus")
	if err != nil {
		t.Fatalf("StreamSync failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 processed items, got %d", count)
	}

	got, err := db.BlockedDomains()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"keep-me.com", "new-entry.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("blocked got %v, want %v", got, want)
	}
}

func TestStreamSync_SourcesAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	db.StreamSync(ctx, feed(Entry{Domain: "shared.com", Action: ActionBlock}), "a")
	db.StreamSync(ctx, feed(Entry{Domain: "shared.com", Action: ActionBlock}, Entry{Domain: "b-only.com", Action: ActionBlock}), "b")

	// Emptying source b must not touch source a.
	if _, err := db.StreamSync(ctx, feed(), "b"); err != nil {
		t.Fatal(err)
	}

	got, _ := db.BlockedDomains()
	if !reflect.DeepEqual(got, []string{"shared.com"}) {
		t.Errorf("got %v", got)
	}

	counts, err := db.SourceCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts["a"] != 1 || counts["b"] != 0 {
		t.Errorf("counts got %v", counts)
	}
}

func TestStreamSync_CancelKeepsPreviousEntries(t *testing.T) {
	db := newTestDB(t)
	db.StreamSync(context.Background(), feed(Entry{Domain: "evil.test", Action: ActionBlock}), "urlhaus")

	ctx, cancel := context.WithCancel(context.Background())
	stream := make(chan Entry, 1)
	stream <- Entry{Domain: "other.test", Action: ActionBlock}
	cancel()
	close(stream)

	if _, err := db.StreamSync(ctx, stream, "urlhaus"); err == nil {
		t.Fatal("expected cancellation error")
	}

	got, _ := db.BlockedDomains()
	if !reflect.DeepEqual(got, []string{"evil.test"}) {
		t.Errorf("rolled back sync changed the table: %v", got)
	}
}

func TestSyncUserRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.StreamSync(ctx, feed(
		Entry{Domain: "evil.test", Action: ActionBlock},
		Entry{Domain: "bank.example.com", Action: ActionBlock},
	), "phishtank")

	if err := db.SyncUserRules([]string{"Bank.Example.com", "both.test"}, []string{"mine.test", "both.test", " "}); err != nil {
		t.Fatalf("SyncUserRules failed: %v", err)
	}

	blocked, _ := db.BlockedDomains()
	if !reflect.DeepEqual(blocked, []string{"evil.test", "mine.test"}) {
		t.Errorf("blocked got %v", blocked)
	}
	allowed, _ := db.AllowedDomains()
	if !reflect.DeepEqual(allowed, []string{"bank.example.com", "both.test"}) {
		t.Errorf("allowed got %v", allowed)
	}

	// A second call replaces the first.
	if err := db.SyncUserRules(nil, nil); err != nil {
		t.Fatal(err)
	}
	blocked, _ = db.BlockedDomains()
	if !reflect.DeepEqual(blocked, []string{"bank.example.com", "evil.test"}) {
		t.Errorf("blocked after reset got %v", blocked)
	}
}

func TestGetEntries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.StreamSync(ctx, feed(Entry{Domain: "evil.test", Action: ActionBlock}), "urlhaus")
	db.StreamSync(ctx, feed(Entry{Domain: "evil.test", Action: ActionBlock}), "phishtank")

	entries, err := db.GetEntries("EVIL.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Source != "phishtank" || entries[1].Source != "urlhaus" {
		t.Errorf("sources got %s, %s", entries[0].Source, entries[1].Source)
	}
	if entries[0].UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}

	none, err := db.GetEntries("unknown.test")
	if err != nil || len(none) != 0 {
		t.Errorf("got %v, %v", none, err)
	}
}

func TestETag(t *testing.T) {
	db := newTestDB(t)

	if got := db.GetETag("urlhaus"); got != "" {
		t.Errorf("unset etag got %q", got)
	}
	db.UpdateETag("urlhaus", `"abc"`)
	db.UpdateETag("urlhaus", `"def"`)
	if got := db.GetETag("urlhaus"); got != `"def"` {
		t.Errorf("etag got %q", got)
	}
}

func TestInitDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lists.db")

	db := &ListDB{}
	if err := db.InitDB(path); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	db.UpdateETag("k", "v")
	db.Close()

	// Reopening keeps the data and the schema init is repeatable.
	db = &ListDB{}
	if err := db.InitDB(path); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
	if db.GetETag("k") != "v" {
		t.Error("data lost across reopen")
	}
}
