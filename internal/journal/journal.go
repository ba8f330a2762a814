// Package journal provides an append-only, ordered-by-time history of
// immutable change records for a single entity.
//
// Every synchronized entity (a table, a task) owns one journal. The current
// display state of the entity is derived by asking the journal for the
// record with the greatest timestamp; history is never collapsed, so a
// journal also serves as the replay source when reconstructing state from
// local storage.
package journal

// Entry pairs a change record with the unix timestamp it was recorded at.
//
// Timestamps come from the author's clock and need not be unique: two users
// can commit a change in the same second. All entries are retained.
type Entry[C any] struct {
	// Time is the unix timestamp (seconds) assigned by the change author.
	Time int64

	// Change is the immutable record payload.
	Change C
}

// Journal stores the ordered history of changes for one entity.
//
// The zero value is ready to use. Journal is not safe for concurrent use;
// callers serialize access (the entity store holds one lock around all
// journal reads and writes).
type Journal[C any] struct {
	entries []Entry[C]
}

// Append records a change at the given unix timestamp.
//
// Append never fails and never overwrites: a duplicate timestamp adds a
// second entry rather than replacing the first. Insertion order is
// remembered so that Latest can break timestamp ties deterministically.
func (j *Journal[C]) Append(time int64, change C) {
	j.entries = append(j.entries, Entry[C]{Time: time, Change: change})
}

// Latest returns the entry with the greatest timestamp.
//
// On a timestamp tie the most recently appended entry wins. The boolean is
// false only for an empty journal, which does not occur for live entities
// (the founding change is appended atomically with entity creation).
func (j *Journal[C]) Latest() (Entry[C], bool) {
	if len(j.entries) == 0 {
		return Entry[C]{}, false
	}
	best := 0
	for i := 1; i < len(j.entries); i++ {
		if j.entries[i].Time >= j.entries[best].Time {
			best = i
		}
	}
	return j.entries[best], true
}

// Initial returns the entry with the smallest timestamp, used when
// persisting a newly created entity's founding state.
//
// On a timestamp tie the earliest appended entry wins.
func (j *Journal[C]) Initial() (Entry[C], bool) {
	if len(j.entries) == 0 {
		return Entry[C]{}, false
	}
	best := 0
	for i := 1; i < len(j.entries); i++ {
		if j.entries[i].Time < j.entries[best].Time {
			best = i
		}
	}
	return j.entries[best], true
}

// Len reports the number of entries recorded so far.
func (j *Journal[C]) Len() int {
	return len(j.entries)
}

// Entries returns a copy of the history in insertion order.
//
// The copy is safe to read after the journal is appended to again.
func (j *Journal[C]) Entries() []Entry[C] {
	out := make([]Entry[C], len(j.entries))
	copy(out, j.entries)
	return out
}
