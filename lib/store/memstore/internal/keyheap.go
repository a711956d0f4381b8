// Package internal provides the derived lookup structures of the entry
// store: tag indexes, an expiration-ordered queue and an access-ordered
// queue for LRU decisions.
//
// This file implements a priority queue combining a binary heap with a hash
// map, giving O(log n) priority operations and O(1) key lookups. The store
// uses one instance ordered by expiration time and one ordered by last
// access time.
//
// Concurrency: this implementation is not thread-safe by default. The entry
// store guards it with the same mutex that protects entry mutations, so
// indexes and entries can never disagree.
package internal

import (
	"container/heap"
)

// item is a single heap element: a key prioritized by a unix-nano timestamp.
type item struct {
	Key      string
	Priority int64
	index    int // position in the heap slice, maintained by heap package
}

// KeyHeap is a min-heap of keys ordered by timestamp with key-based access.
type KeyHeap struct {
	items    []*item
	itemsMap map[string]*item
}

// NewKeyHeap creates an empty heap.
func NewKeyHeap() *KeyHeap {
	return &KeyHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[string]*item),
	}
}

// Len returns the number of items (part of heap.Interface).
func (h *KeyHeap) Len() int { return len(h.items) }

// Less orders by priority, oldest first (part of heap.Interface).
func (h *KeyHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface).
func (h *KeyHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item (part of heap.Interface).
func (h *KeyHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface).
func (h *KeyHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// Set inserts key with the given priority or updates it in place.
func (h *KeyHeap) Set(key string, priority int64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &item{Key: key, Priority: priority})
}

// Remove removes key from the heap. It returns the priority the key had and
// whether it existed.
func (h *KeyHeap) Remove(key string) (int64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// Min returns the key with the smallest priority without removing it.
func (h *KeyHeap) Min() (string, int64, bool) {
	if len(h.items) == 0 {
		return "", 0, false
	}
	return h.items[0].Key, h.items[0].Priority, true
}

// PopMin removes and returns the key with the smallest priority.
func (h *KeyHeap) PopMin() (string, int64, bool) {
	if len(h.items) == 0 {
		return "", 0, false
	}
	it := heap.Pop(h).(*item)
	return it.Key, it.Priority, true
}

// Contains reports whether key is tracked.
func (h *KeyHeap) Contains(key string) bool {
	_, exists := h.itemsMap[key]
	return exists
}
