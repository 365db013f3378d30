package audio

// Source identifies which capture path produced a chunk. The
// microphone is the local speaker; the tab source carries the remote
// party.
type Source string

const (
	SourceMic Source = "mic"
	SourceTab Source = "tab"
)

// Chunk is one fixed-format frame of 16-bit PCM audio as delivered by
// the capture layer. TimestampMs is the producer's monotonic clock;
// chunks from one source arrive in timestamp order and must stay in
// that order all the way to the wire.
type Chunk struct {
	Source      Source
	PCM         []byte
	SampleRate  int
	TimestampMs int64
}
