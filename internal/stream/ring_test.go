package stream

import (
	"fmt"
	"testing"
)

func TestRing_FillAndOverwrite(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.add(record{MessageID: fmt.Sprintf("m%d", i), RiskScore: float64(i)})
	}

	if got := r.len(); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}

	// Oldest two entries were overwritten.
	if _, ok := r.find("m1"); ok {
		t.Error("m1 still present after overwrite")
	}
	if _, ok := r.find("m2"); ok {
		t.Error("m2 still present after overwrite")
	}
	rec, ok := r.find("m5")
	if !ok || rec.RiskScore != 5 {
		t.Errorf("find(m5) = %+v ok=%v", rec, ok)
	}
}

func TestRing_TailOrder(t *testing.T) {
	r := newRing(4)
	for i := 1; i <= 6; i++ {
		r.add(record{MessageID: fmt.Sprintf("m%d", i)})
	}

	got := r.tail(3)
	want := []string{"m4", "m5", "m6"}
	if len(got) != len(want) {
		t.Fatalf("tail(3) returned %d records, want %d", len(got), len(want))
	}
	for i, rec := range got {
		if rec.MessageID != want[i] {
			t.Errorf("tail[%d] = %s, want %s", i, rec.MessageID, want[i])
		}
	}
}

func TestRing_TailPartiallyFilled(t *testing.T) {
	r := newRing(10)
	r.add(record{MessageID: "a"})
	r.add(record{MessageID: "b"})

	got := r.tail(5)
	if len(got) != 2 || got[0].MessageID != "a" || got[1].MessageID != "b" {
		t.Errorf("tail(5) = %+v, want [a b]", got)
	}
}

func TestRing_FindNewestFirst(t *testing.T) {
	r := newRing(4)
	r.add(record{MessageID: "m1", Status: StatusFailed})
	r.add(record{MessageID: "m1", Status: StatusCompleted})

	rec, ok := r.find("m1")
	if !ok || rec.Status != StatusCompleted {
		t.Errorf("find returned %+v, want the most recent record", rec)
	}
}

func TestRing_Clear(t *testing.T) {
	r := newRing(2)
	r.add(record{MessageID: "m1"})
	r.clear()

	if r.len() != 0 {
		t.Errorf("len after clear = %d, want 0", r.len())
	}
	if _, ok := r.find("m1"); ok {
		t.Error("record survives clear")
	}
}
