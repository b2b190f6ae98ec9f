package encoder

import (
	"fmt"
	"testing"
)

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(fmt.Sprintf("line-%d", i))
	}
	got := rb.Snapshot()
	want := []string{"line-2", "line-3", "line-4"}
	if len(got) != len(want) {
		t.Fatalf("Snapshot length = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRingBufferBeforeFull(t *testing.T) {
	rb := NewRingBuffer(5)
	rb.Add("a")
	rb.Add("b")
	got := rb.Snapshot()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.cap != DefaultRingBufferCapacity {
		t.Fatalf("cap = %d, want %d", rb.cap, DefaultRingBufferCapacity)
	}
}
