package recorder

import "sort"

// sequencer releases chunk texts in sequence order regardless of the
// order their transcriptions complete. Sequences start at 1.
type sequencer struct {
	next int
	held map[int]string
}

func newSequencer() *sequencer {
	return &sequencer{next: 1, held: make(map[int]string)}
}

// Put records the text for seq and returns every text that is now ready,
// in order. Empty texts advance the sequence without being returned.
func (s *sequencer) Put(seq int, text string) []string {
	if seq < s.next {
		return nil
	}
	s.held[seq] = text
	var ready []string
	for {
		t, ok := s.held[s.next]
		if !ok {
			break
		}
		delete(s.held, s.next)
		s.next++
		if t != "" {
			ready = append(ready, t)
		}
	}
	return ready
}

// Drain returns held texts in order, skipping sequences that never
// completed, and resets the sequencer past them.
func (s *sequencer) Drain() []string {
	if len(s.held) == 0 {
		return nil
	}
	seqs := make([]int, 0, len(s.held))
	for seq := range s.held {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	var out []string
	for _, seq := range seqs {
		if t := s.held[seq]; t != "" {
			out = append(out, t)
		}
		delete(s.held, seq)
		s.next = seq + 1
	}
	return out
}

// Pending reports how many completed texts are waiting on a gap.
func (s *sequencer) Pending() int {
	return len(s.held)
}
