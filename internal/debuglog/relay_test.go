package debuglog

import (
	"fmt"
	"testing"
)

func TestRelayRecordAndGet(t *testing.T) {
	r := NewRelay(10)

	r.Record("msg-1", TypeRequest, map[string]any{"method": "message/send"})
	r.Record("msg-1", TypeResponse, map[string]any{"result": "ok"})

	entries := r.Get("msg-1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != TypeRequest || entries[1].Type != TypeResponse {
		t.Fatalf("expected request then response, got %s then %s", entries[0].Type, entries[1].Type)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestRelayGetUnknownID(t *testing.T) {
	r := NewRelay(10)
	if entries := r.Get("nope"); len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestRelayEvictsOldestID(t *testing.T) {
	r := NewRelay(500)

	for i := range 501 {
		r.Record(fmt.Sprintf("id-%d", i), TypeRequest, nil)
	}

	ids := r.IDs()
	if len(ids) != 500 {
		t.Fatalf("expected exactly 500 retained ids, got %d", len(ids))
	}
	if ids[0] != "id-1" {
		t.Fatalf("expected id-0 evicted, oldest retained is %s", ids[0])
	}
	if ids[len(ids)-1] != "id-500" {
		t.Fatalf("expected id-500 retained last, got %s", ids[len(ids)-1])
	}
	if entries := r.Get("id-0"); len(entries) != 0 {
		t.Fatal("expected entries for evicted id to be purged")
	}
}

func TestRelayEvictionCountsIDsNotEntries(t *testing.T) {
	r := NewRelay(2)

	// Many entries on one id must not trigger eviction.
	for range 10 {
		r.Record("a", TypeRequest, nil)
	}
	r.Record("b", TypeRequest, nil)

	if got := len(r.IDs()); got != 2 {
		t.Fatalf("expected 2 ids, got %d", got)
	}

	// A third distinct id evicts "a" with all ten entries.
	r.Record("c", TypeRequest, nil)
	if entries := r.Get("a"); len(entries) != 0 {
		t.Fatalf("expected a purged, got %d entries", len(entries))
	}
	if entries := r.Get("b"); len(entries) != 1 {
		t.Fatalf("expected b retained, got %d entries", len(entries))
	}
}

func TestRelayEntriesAppendOrder(t *testing.T) {
	r := NewRelay(10)
	r.Record("a", TypeRequest, nil)
	r.Record("b", TypeRequest, nil)
	r.Record("a", TypeError, nil)

	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "a" || entries[1].ID != "b" || entries[2].ID != "a" {
		t.Fatalf("unexpected order: %v", entries)
	}
	if entries[2].Type != TypeError {
		t.Fatalf("expected error entry last, got %s", entries[2].Type)
	}
}

func TestRelayDefaultBound(t *testing.T) {
	r := NewRelay(0)
	if r.maxIDs != DefaultMaxLogs {
		t.Fatalf("expected default bound %d, got %d", DefaultMaxLogs, r.maxIDs)
	}
}
