package storage

// Outcome records the result of one file within a batch operation:
// either the destination it landed on, or the error it failed with.
type Outcome struct {
	Source string
	Dest   string
	Err    error
}

// BatchResult is the per-file outcome ledger of a multi-file operation.
// Entries appear in the deterministic sorted order the expander produced;
// a failed file never stops iteration over the rest, so the ledger always
// has one entry per resolved file.
type BatchResult struct {
	Entries []Outcome
}

// add appends one outcome.
func (b *BatchResult) add(source, dest string, err error) {
	b.Entries = append(b.Entries, Outcome{Source: source, Dest: dest, Err: err})
}

// Failed returns the number of entries that carry an error.
func (b *BatchResult) Failed() int {
	var n int

	for _, e := range b.Entries {
		if e.Err != nil {
			n++
		}
	}

	return n
}

// OK reports whether every entry succeeded.
func (b *BatchResult) OK() bool {
	return b.Failed() == 0
}
