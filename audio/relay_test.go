package audio

import "testing"

func chunk(ts int64) Chunk {
	return Chunk{Source: SourceMic, PCM: []byte{byte(ts)}, SampleRate: 16000, TimestampMs: ts}
}

func timestamps(chunks []Chunk) []int64 {
	out := make([]int64, len(chunks))
	for i, c := range chunks {
		out[i] = c.TimestampMs
	}
	return out
}

func TestRelayFlushPreservesOrder(t *testing.T) {
	r := NewRelay(5)
	for ts := int64(1); ts <= 3; ts++ {
		r.Add(chunk(ts))
	}

	got := timestamps(r.Flush())
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("flush returned %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flush[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if r.Len() != 0 {
		t.Errorf("relay not empty after flush: len=%d", r.Len())
	}
}

func TestRelayDropsOldestWhenFull(t *testing.T) {
	r := NewRelay(3)
	for ts := int64(1); ts <= 4; ts++ {
		r.Add(chunk(ts))
	}

	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}

	got := timestamps(r.Flush())
	want := []int64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flush[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRelayNeverExceedsCapacity(t *testing.T) {
	r := NewRelay(4)
	for ts := int64(0); ts < 50; ts++ {
		r.Add(chunk(ts))
		if r.Len() > r.Cap() {
			t.Fatalf("len %d exceeded capacity %d", r.Len(), r.Cap())
		}
	}

	got := timestamps(r.Flush())
	want := []int64{46, 47, 48, 49}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flush[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRelayClear(t *testing.T) {
	r := NewRelay(3)
	r.Add(chunk(1))
	r.Add(chunk(2))
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("len = %d after clear, want 0", r.Len())
	}
	if got := r.Flush(); got != nil {
		t.Errorf("flush after clear = %v, want nil", got)
	}
}

func TestRelayWrapAroundAfterFlush(t *testing.T) {
	r := NewRelay(3)
	for ts := int64(1); ts <= 5; ts++ {
		r.Add(chunk(ts))
	}
	r.Flush()

	r.Add(chunk(10))
	r.Add(chunk(11))

	got := timestamps(r.Flush())
	want := []int64{10, 11}
	if len(got) != len(want) {
		t.Fatalf("flush returned %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flush[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
