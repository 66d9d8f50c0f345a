package outputring

import "sync/atomic"

// maxReaderGroups bounds how many consumer groups one ring supports: each
// cell packs one byte per group plus one byte for the writer into a single
// uint64, so 7 groups plus the writer byte fit exactly (spec.md section
// 4.4, "one byte per consumer group").
const (
	maxReaderGroups = 7
	writerByteIndex = 7
)

// cellState is the packed-atomic-word cell state from spec.md section 4.4:
// one byte of "write in progress/done" (the started word's writer byte)
// plus one byte per consumer group of "read in progress" (started) and
// "read done" (finished), grounded on original_source's
// FFQOutputStorage::ReaderGroupState.
type cellState struct {
	started  atomic.Uint64
	finished atomic.Uint64
}

func setByte(word *atomic.Uint64, index int) bool {
	shift := uint(index) * 8
	for {
		old := word.Load()
		if (old>>shift)&0xFF == 0xFF {
			return false
		}
		next := old | (uint64(0xFF) << shift)
		if word.CompareAndSwap(old, next) {
			return true
		}
	}
}

// tryToSetWriter claims this cell for writing; it fails if another writer
// already claimed it (Invariant R1: at most one writer flag set at a time).
func (c *cellState) tryToSetWriter() bool {
	return setByte(&c.started, writerByteIndex)
}

// tryToSetReadingStarted claims this cell for reading on behalf of group;
// it fails if that group already claimed it (Invariant R2).
func (c *cellState) tryToSetReadingStarted(group int) bool {
	return setByte(&c.started, group)
}

// setReadingFinished marks group's read of this cell complete.
func (c *cellState) setReadingFinished(group int) {
	setByte(&c.finished, group)
}

// allGroupsRead reports whether every active consumer group (and every
// inactive, out-of-range group slot) has marked this cell read-done,
// meaning the cell is free for a new writer.
func (c *cellState) allGroupsRead() bool {
	return c.finished.Load() == ^uint64(0)
}

// initFree puts the cell into the ring-construction "free/writable" state:
// every group byte (active or not) is pre-marked 0xFF in both started and
// finished, so allGroupsRead() is true (a writer may claim the cell) and
// tryToSetReadingStarted fails for every group (no consumer can claim a
// cell that has never been written). The writer byte is left clear so
// tryToSetWriter can succeed. This is distinct from reset, which puts a
// cell into the post-publish "ready to read" state instead; New calls
// initFree once per cell, and the writer calls reset after every publish.
func (c *cellState) initFree() {
	c.finished.Store(^uint64(0))
	c.started.Store(^uint64(0) &^ (uint64(0xFF) << uint(writerByteIndex*8)))
}

// reset reinitializes the cell for groupsTotal active consumer groups:
// active groups' started/finished bytes go to 0 (unclaimed, unread);
// inactive group slots are pre-marked 0xFF in both words so they never
// block allGroupsRead or tryToSetReadingStarted. Called by the writer
// immediately after publishing a record, which is what makes the
// freshly-written cell visible to readers (there is no separate "write
// done" flag; a cleared started/finished byte pair for a given group
// means "ready for that group to read").
func (c *cellState) reset(groupsTotal int) {
	var finished uint64
	if groupsTotal < 64/8 {
		finished = ^uint64(0) << uint(groupsTotal*8)
	}
	c.finished.Store(finished)

	var started uint64
	if groupsTotal < writerByteIndex {
		started = ^uint64(0) << uint(groupsTotal*8)
		started &^= uint64(0xFF) << uint(writerByteIndex*8)
	}
	c.started.Store(started)
}
