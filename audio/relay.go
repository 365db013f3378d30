package audio

// Relay is a fixed-capacity FIFO that holds outbound chunks while the
// stream connection that owns it is down. When full, Add drops the
// oldest chunk: during an outage we keep the most recent few seconds
// of conversation and let the head of the backlog go.
//
// A Relay is owned by exactly one stream connection and is not safe
// for concurrent use.
type Relay struct {
	buf   []Chunk
	head  int
	count int
}

// DefaultRelayCapacity holds roughly six seconds of audio at the
// capture layer's frame rate.
const DefaultRelayCapacity = 100

func NewRelay(capacity int) *Relay {
	if capacity <= 0 {
		capacity = DefaultRelayCapacity
	}
	return &Relay{buf: make([]Chunk, capacity)}
}

// Add appends a chunk, evicting the oldest buffered chunk when the
// relay is at capacity.
func (r *Relay) Add(c Chunk) {
	if r.count == len(r.buf) {
		r.buf[r.head] = c
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.count)%len(r.buf)] = c
	r.count++
}

// Flush returns all buffered chunks in arrival order and empties the
// relay.
func (r *Relay) Flush() []Chunk {
	if r.count == 0 {
		return nil
	}
	out := make([]Chunk, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = 0
	r.count = 0
	return out
}

// Clear discards the buffered chunks without returning them.
func (r *Relay) Clear() {
	r.head = 0
	r.count = 0
}

// Len reports how many chunks are currently buffered.
func (r *Relay) Len() int {
	return r.count
}

// Cap reports the relay's fixed capacity.
func (r *Relay) Cap() int {
	return len(r.buf)
}
