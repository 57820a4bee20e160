package bets

import "container/heap"

// targetIndex orders auto-cashout registrations by target multiplier so a tick
// sweep only touches the slots that became eligible, not every open bet.
// Removal is lazy: cancelled or manually cashed-out entries are marked and
// dropped when they surface at the top of the heap. Not safe for concurrent
// use; the ledger mutex guards it.
type targetIndex struct {
	entries targetHeap
	byKey   map[string]*indexEntry
}

type indexEntry struct {
	key     string
	userID  string
	slot    int
	target  float64
	removed bool
}

func newTargetIndex() *targetIndex {
	return &targetIndex{byKey: make(map[string]*indexEntry)}
}

func (x *targetIndex) push(key, userID string, slot int, target float64) {
	entry := &indexEntry{key: key, userID: userID, slot: slot, target: target}
	x.byKey[key] = entry
	heap.Push(&x.entries, entry)
}

func (x *targetIndex) remove(key string) {
	if entry, ok := x.byKey[key]; ok {
		entry.removed = true
		delete(x.byKey, key)
	}
}

// popEligible returns the lowest registered target that the current multiplier
// has reached, or ok=false when none remain eligible.
func (x *targetIndex) popEligible(current float64) (entry *indexEntry, ok bool) {
	for x.entries.Len() > 0 {
		top := x.entries[0]
		if top.removed {
			heap.Pop(&x.entries)
			continue
		}
		if top.target > current {
			return nil, false
		}
		heap.Pop(&x.entries)
		delete(x.byKey, top.key)
		return top, true
	}
	return nil, false
}

func (x *targetIndex) reset() {
	x.entries = x.entries[:0]
	x.byKey = make(map[string]*indexEntry)
}

func (x *targetIndex) len() int {
	return len(x.byKey)
}

type targetHeap []*indexEntry

func (h targetHeap) Len() int            { return len(h) }
func (h targetHeap) Less(i, j int) bool  { return h[i].target < h[j].target }
func (h targetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *targetHeap) Push(v interface{}) { *h = append(*h, v.(*indexEntry)) }
func (h *targetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return v
}
