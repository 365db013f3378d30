package transcript

import (
	"strings"
	"sync"

	"earshot/audio"
)

// Entry is one utterance from one audio source. Interim entries are
// provisional and are superseded in place; final entries are committed
// and never revised by the provider.
type Entry struct {
	ID          string       `json:"id"`
	Source      audio.Source `json:"source"`
	Speaker     string       `json:"speaker"`
	Text        string       `json:"text"`
	TimestampMs int64        `json:"timestampMs"`
	IsFinal     bool         `json:"isFinal"`
	Confidence  float64      `json:"confidence"`
}

// Update is the display-oriented view pushed after every mutation: the
// merged entry list with edits applied in place, plus the id sets the
// UI needs to render "(edited)" markers and undo affordances. Deleted
// entries remain in Entries so they can be shown greyed and restored.
type Update struct {
	Entries    []ViewEntry `json:"entries"`
	EditedIDs  []string    `json:"editedIds"`
	DeletedIDs []string    `json:"deletedIds"`
}

// ViewEntry is an Entry after the edit overlay has been applied.
type ViewEntry struct {
	Entry
	Edited  bool `json:"edited"`
	Deleted bool `json:"deleted"`
}

// Store merges the entry streams from both sources into one
// chronologically ordered sequence and owns the edit overlay. It is
// the single writer for all transcript state: stream connections only
// submit entries through Ingest, everything else reads snapshots.
type Store struct {
	mu       sync.Mutex
	final    []Entry
	interims map[audio.Source]Entry
	edits    map[string]editRecord
	speakers map[audio.Source]string
	notify   func(Update)
}

type editRecord struct {
	editedText   *string
	isDeleted    bool
	originalText string
}

func NewStore() *Store {
	return &Store{
		interims: make(map[audio.Source]Entry),
		edits:    make(map[string]editRecord),
		speakers: map[audio.Source]string{
			audio.SourceMic: "You",
			audio.SourceTab: "Interviewer",
		},
	}
}

// SetNotify registers the callback invoked with a fresh Update after
// every mutation. Must be called before the stream connections start.
func (s *Store) SetNotify(fn func(Update)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// RenameSpeaker assigns a user-chosen label to a source. The label
// applies to past and future entries alike; speaker identity is purely
// source-derived.
func (s *Store) RenameSpeaker(source audio.Source, name string) {
	s.mu.Lock()
	s.speakers[source] = name
	update := s.buildUpdate()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

// Ingest merges one entry. An interim entry replaces the source's live
// interim slot (at most one per source). A final entry is inserted at
// its chronological position and clears that source's interim slot.
// The entry is fully applied or not at all; there is no partial state.
func (s *Store) Ingest(e Entry) {
	s.mu.Lock()
	if !e.IsFinal {
		s.interims[e.Source] = e
	} else {
		delete(s.interims, e.Source)
		s.insertFinal(e)
	}
	update := s.buildUpdate()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

// insertFinal places e at the chronologically correct position,
// searching from the tail backward since new entries are usually
// near-latest. Ties break toward insertion order.
func (s *Store) insertFinal(e Entry) {
	i := len(s.final)
	for i > 0 && s.final[i-1].TimestampMs > e.TimestampMs {
		i--
	}
	s.final = append(s.final, Entry{})
	copy(s.final[i+1:], s.final[i:])
	s.final[i] = e
}

// SnapshotFull returns the formatted text of all final entries with
// the edit overlay applied.
func (s *Store) SnapshotFull() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format(s.final)
}

// SnapshotRecent returns the formatted text of the last n final
// entries, edit-aware.
func (s *Store) SnapshotRecent(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.final
	if n >= 0 && n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	return s.format(entries)
}

// SnapshotSince returns the formatted text of all final entries at or
// after the cutoff, for capture-since-hotkey semantics.
func (s *Store) SnapshotSince(timestampMs int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.final)
	for i > 0 && s.final[i-1].TimestampMs >= timestampMs {
		i--
	}
	return s.format(s.final[i:])
}

// format applies the edit overlay and renders "Speaker: text" lines.
// Deleted entries are omitted here; only the display view keeps them.
// Speaker labels resolve at read time so renames apply to past entries.
func (s *Store) format(entries []Entry) string {
	var b strings.Builder
	for _, e := range applyEdits(entries, s.edits) {
		b.WriteString(s.speakers[e.Source])
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// applyEdits is a pure transform: entries marked deleted are filtered
// out, entries with edited text come back with text replaced. The
// underlying entries are never mutated.
func applyEdits(entries []Entry, edits map[string]editRecord) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		rec, ok := edits[e.ID]
		if ok && rec.isDeleted {
			continue
		}
		if ok && rec.editedText != nil {
			e.Text = *rec.editedText
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) buildUpdate() Update {
	entries := make([]ViewEntry, 0, len(s.final)+len(s.interims))
	for _, e := range s.final {
		ve := ViewEntry{Entry: e}
		ve.Entry.Speaker = s.speakers[e.Source]
		if rec, ok := s.edits[e.ID]; ok {
			ve.Deleted = rec.isDeleted
			if rec.editedText != nil {
				ve.Entry.Text = *rec.editedText
				ve.Edited = true
			}
		}
		entries = append(entries, ve)
	}
	for _, src := range []audio.Source{audio.SourceTab, audio.SourceMic} {
		if e, ok := s.interims[src]; ok {
			e.Speaker = s.speakers[src]
			entries = append(entries, ViewEntry{Entry: e})
		}
	}

	update := Update{Entries: entries}
	for id, rec := range s.edits {
		if rec.isDeleted {
			update.DeletedIDs = append(update.DeletedIDs, id)
		}
		if rec.editedText != nil {
			update.EditedIDs = append(update.EditedIDs, id)
		}
	}
	return update
}
