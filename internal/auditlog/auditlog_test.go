package auditlog

import "testing"

func TestRecentReturnsOldestFirstWithinCapacity(t *testing.T) {
	l := New(3)
	l.Record(Entry{Query: "a"})
	l.Record(Entry{Query: "b"})

	recent := l.Recent()
	if len(recent) != 2 || recent[0].Query != "a" || recent[1].Query != "b" {
		t.Fatalf("unexpected order: %+v", recent)
	}
}

func TestRecordDropsOldestWhenFull(t *testing.T) {
	l := New(2)
	l.Record(Entry{Query: "a"})
	l.Record(Entry{Query: "b"})
	l.Record(Entry{Query: "c"})

	recent := l.Recent()
	if len(recent) != 2 || recent[0].Query != "b" || recent[1].Query != "c" {
		t.Fatalf("expected oldest entry dropped, got %+v", recent)
	}
}
