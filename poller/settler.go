// Package poller repeatedly reads the pad until the stack of tags on it
// has stopped changing.
package poller

import "circrfid/reader"

// Settler decides when a stream of snapshots has settled.
//
// An empty read never fires and leaves the recorded count alone. The first
// non-empty read records its tag count; a later read with the same count
// fires, a read with a different count records the new count. With NoWait
// the first non-empty read fires.
type Settler struct {
	NoWait bool

	count int
}

// Tick feeds one snapshot and reports whether it should be delivered.
func (s *Settler) Tick(snap reader.Snapshot) bool {
	n := len(snap.Items)
	if n == 0 {
		return false
	}
	if s.NoWait {
		return true
	}
	if s.count == n {
		s.count = 0
		return true
	}
	s.count = n
	return false
}
