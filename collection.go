package ico

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// MaxEntries is the largest entry count a directory table can describe.
const MaxEntries = 0xffff

var collectionIDs atomic.Uint64

// Collection is an ordered set of entries, unique by Key. An entry belongs
// to at most one collection at a time.
type Collection struct {
	id      uint64
	entries []*Entry
}

func NewCollection() *Collection {
	return &Collection{id: collectionIDs.Add(1)}
}

func (c *Collection) Len() int { return len(c.entries) }

func (c *Collection) At(i int) *Entry { return c.entries[i] }

// Entries returns the entries in collection order.
func (c *Collection) Entries() []*Entry {
	return append([]*Entry(nil), c.entries...)
}

func (c *Collection) Keys() []Key {
	keys := make([]Key, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.key
	}
	return keys
}

// Insert adds e at index i. It returns false if e is owned elsewhere, its
// key is already present or the collection is full. An index outside
// [0, Len()] panics.
func (c *Collection) Insert(i int, e *Entry) bool {
	if i < 0 || i > len(c.entries) {
		panic(fmt.Sprintf("ico: insert index %d out of range [0,%d]", i, len(c.entries)))
	}
	if e == nil || e.owner != 0 || len(c.entries) >= MaxEntries {
		return false
	}
	if c.IndexOfSimilar(e.key) >= 0 || c.hasDuplicates(-1) {
		return false
	}
	c.entries = append(c.entries, nil)
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
	e.owner = c.id
	return true
}

func (c *Collection) Append(e *Entry) bool {
	return c.Insert(len(c.entries), e)
}

// Set replaces the entry at index i with e, releasing the old one. It fails
// under the same conditions as Insert, ignoring the entry being replaced.
func (c *Collection) Set(i int, e *Entry) bool {
	if i < 0 || i >= len(c.entries) {
		panic(fmt.Sprintf("ico: set index %d out of range [0,%d)", i, len(c.entries)))
	}
	old := c.entries[i]
	if e == old {
		return true
	}
	if e == nil || e.owner != 0 {
		return false
	}
	for j, x := range c.entries {
		if j != i && x.key == e.key {
			return false
		}
	}
	if c.hasDuplicates(i) {
		return false
	}
	old.owner = 0
	c.entries[i] = e
	e.owner = c.id
	return true
}

// RemoveAt removes and returns the entry at index i.
func (c *Collection) RemoveAt(i int) *Entry {
	if i < 0 || i >= len(c.entries) {
		panic(fmt.Sprintf("ico: remove index %d out of range [0,%d)", i, len(c.entries)))
	}
	e := c.entries[i]
	copy(c.entries[i:], c.entries[i+1:])
	c.entries[len(c.entries)-1] = nil
	c.entries = c.entries[:len(c.entries)-1]
	e.owner = 0
	return e
}

// Remove removes e if the collection owns it.
func (c *Collection) Remove(e *Entry) bool {
	i := c.IndexOf(e)
	if i < 0 {
		return false
	}
	c.RemoveAt(i)
	return true
}

// RemoveKey removes the first entry with key k.
func (c *Collection) RemoveKey(k Key) bool {
	i := c.IndexOfSimilar(k)
	if i < 0 {
		return false
	}
	c.RemoveAt(i)
	return true
}

func (c *Collection) Contains(e *Entry) bool { return c.IndexOf(e) >= 0 }

// ContainsSimilar reports whether an entry with key k is present.
func (c *Collection) ContainsSimilar(k Key) bool { return c.IndexOfSimilar(k) >= 0 }

// IndexOf returns the index of e itself, or -1.
func (c *Collection) IndexOf(e *Entry) int {
	if e == nil || e.owner != c.id {
		return -1
	}
	for i, x := range c.entries {
		if x == e {
			return i
		}
	}
	return -1
}

// IndexOfSimilar returns the index of the first entry with key k, or -1.
func (c *Collection) IndexOfSimilar(k Key) int {
	for i, x := range c.entries {
		if x.key == k {
			return i
		}
	}
	return -1
}

// Search does a binary search for k. The collection must be sorted.
// If k is absent the returned index is where it would be inserted.
func (c *Collection) Search(k Key) (int, bool) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return Compare(c.entries[i].key, k) >= 0
	})
	return i, i < len(c.entries) && c.entries[i].key == k
}

// Sort orders entries by key. It is stable.
func (c *Collection) Sort() {
	sort.SliceStable(c.entries, func(i, j int) bool {
		return Compare(c.entries[i].key, c.entries[j].key) < 0
	})
}

func (c *Collection) Clear() {
	for _, e := range c.entries {
		e.owner = 0
	}
	c.entries = nil
}

// HasDuplicates reports whether two entries share a key. Only collections
// loaded from malformed files can be in that state.
func (c *Collection) HasDuplicates() bool { return c.hasDuplicates(-1) }

func (c *Collection) hasDuplicates(skip int) bool {
	seen := make(map[Key]struct{}, len(c.entries))
	for i, e := range c.entries {
		if i == skip {
			continue
		}
		if _, ok := seen[e.key]; ok {
			return true
		}
		seen[e.key] = struct{}{}
	}
	return false
}

// load takes ownership of decoded entries without the uniqueness check.
func (c *Collection) load(entries []*Entry) {
	for _, e := range entries {
		e.owner = c.id
		c.entries = append(c.entries, e)
	}
}
