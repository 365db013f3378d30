package transcript

// Edit replaces an entry's text at read time. The original text is
// captured once, on the first edit or delete, and is what Undo
// restores no matter how many edits follow.
func (s *Store) Edit(id, text string) {
	s.mu.Lock()
	if !s.hasEntry(id) {
		s.mu.Unlock()
		return
	}
	rec := s.recordFor(id)
	rec.editedText = &text
	s.edits[id] = rec
	update := s.buildUpdate()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

// Delete marks an entry deleted. It disappears from LLM-facing
// snapshots but stays in the display view, flagged, so it can be
// restored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	if !s.hasEntry(id) {
		s.mu.Unlock()
		return
	}
	rec := s.recordFor(id)
	rec.isDeleted = true
	s.edits[id] = rec
	update := s.buildUpdate()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

// Undo clears the edit record entirely, restoring the text captured
// at first edit and resurrecting a deleted entry.
func (s *Store) Undo(id string) {
	s.mu.Lock()
	delete(s.edits, id)
	update := s.buildUpdate()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

func (s *Store) hasEntry(id string) bool {
	for i := len(s.final) - 1; i >= 0; i-- {
		if s.final[i].ID == id {
			return true
		}
	}
	return false
}

// recordFor returns the existing edit record for id, or a fresh one
// with the entry's current text captured as the original.
func (s *Store) recordFor(id string) editRecord {
	if rec, ok := s.edits[id]; ok {
		return rec
	}
	for i := len(s.final) - 1; i >= 0; i-- {
		if s.final[i].ID == id {
			return editRecord{originalText: s.final[i].Text}
		}
	}
	return editRecord{}
}
