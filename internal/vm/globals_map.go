package vm

import (
	"hash/fnv"
	"math/bits"
	"sort"
)

// Persistent Hash Array Mapped Trie (HAMT) holding the global table.
// Every Put returns a new map sharing untouched nodes, so a function can
// keep the table it was defined under for __globals__ without copying.

const (
	hamtBits = 5
	hamtSize = 1 << hamtBits // 32
	hamtMask = hamtSize - 1
	maxShift = 30
)

// PersistentMap is an immutable hash map from global name to Value.
type PersistentMap struct {
	root  *hamtNode
	count int
	seq   uint64 // Next insertion sequence number
}

type hamtNode struct {
	bitmap   uint32        // which indices are populated
	contents []interface{} // *hamtEntry, *hamtNode or []*hamtEntry
}

// hamtEntry holds a key-value pair. seq records first insertion so
// snapshots can be listed in definition order.
type hamtEntry struct {
	hash  uint32
	key   string
	value Value
	seq   uint64
}

// EmptyMap returns an empty persistent map
func EmptyMap() *PersistentMap {
	return &PersistentMap{}
}

// Len returns the number of entries
func (m *PersistentMap) Len() int {
	return m.count
}

// Get returns the value bound to key.
func (m *PersistentMap) Get(key string) (Value, bool) {
	if m.root == nil {
		return NilVal(), false
	}
	e := m.root.get(hashString(key), key, 0)
	if e == nil {
		return NilVal(), false
	}
	return e.value, true
}

// Has reports whether key is bound.
func (m *PersistentMap) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Put returns a new map with the key-value pair added/updated
func (m *PersistentMap) Put(key string, value Value) *PersistentMap {
	root := m.root
	if root == nil {
		root = &hamtNode{}
	}
	entry := &hamtEntry{hash: hashString(key), key: key, value: value, seq: m.seq}
	newRoot, added := root.put(entry, 0)

	next := &PersistentMap{root: newRoot, count: m.count, seq: m.seq}
	if added {
		next.count++
		next.seq++
	}
	return next
}

// Range visits entries in insertion order until f returns false.
func (m *PersistentMap) Range(f func(key string, value Value) bool) {
	for _, e := range m.sorted() {
		if !f(e.key, e.value) {
			return
		}
	}
}

// Keys returns the bound names in insertion order.
func (m *PersistentMap) Keys() []string {
	entries := m.sorted()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// ToDict renders the map as an ordered dict value.
func (m *PersistentMap) ToDict() *ObjDict {
	entries := m.sorted()
	d := &ObjDict{Entries: make([]DictEntry, len(entries))}
	for i, e := range entries {
		d.Entries[i] = DictEntry{Key: e.key, Value: e.value}
	}
	return d
}

func (m *PersistentMap) sorted() []*hamtEntry {
	if m.root == nil {
		return nil
	}
	out := make([]*hamtEntry, 0, m.count)
	m.root.collect(&out)
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// --- hamtNode methods ---

func (n *hamtNode) get(hash uint32, key string, shift uint) *hamtEntry {
	bit := uint32(1) << ((hash >> shift) & hamtMask)
	if n.bitmap&bit == 0 {
		return nil
	}

	switch v := n.contents[popcount(n.bitmap&(bit-1))].(type) {
	case *hamtEntry:
		if v.hash == hash && v.key == key {
			return v
		}
		return nil
	case *hamtNode:
		return v.get(hash, key, shift+hamtBits)
	case []*hamtEntry: // Collision bucket
		for _, e := range v {
			if e.hash == hash && e.key == key {
				return e
			}
		}
	}
	return nil
}

// put clones the path to entry. An update keeps the original seq.
func (n *hamtNode) put(entry *hamtEntry, shift uint) (*hamtNode, bool) {
	bit := uint32(1) << ((entry.hash >> shift) & hamtMask)

	newNode := &hamtNode{
		bitmap:   n.bitmap,
		contents: make([]interface{}, len(n.contents)),
	}
	copy(newNode.contents, n.contents)
	pos := popcount(n.bitmap & (bit - 1))

	if n.bitmap&bit == 0 {
		newNode.bitmap |= bit
		newNode.contents = append(newNode.contents, nil)
		copy(newNode.contents[pos+1:], newNode.contents[pos:])
		newNode.contents[pos] = entry
		return newNode, true
	}

	switch v := newNode.contents[pos].(type) {
	case *hamtEntry:
		if v.hash == entry.hash && v.key == entry.key {
			newNode.contents[pos] = &hamtEntry{hash: v.hash, key: v.key, value: entry.value, seq: v.seq}
			return newNode, false
		}
		if shift >= maxShift {
			newNode.contents[pos] = []*hamtEntry{v, entry}
			return newNode, true
		}
		child, _ := (&hamtNode{}).put(v, shift+hamtBits)
		child, added := child.put(entry, shift+hamtBits)
		newNode.contents[pos] = child
		return newNode, added

	case *hamtNode:
		child, added := v.put(entry, shift+hamtBits)
		newNode.contents[pos] = child
		return newNode, added

	case []*hamtEntry:
		bucket := make([]*hamtEntry, len(v), len(v)+1)
		copy(bucket, v)
		for i, e := range bucket {
			if e.key == entry.key {
				bucket[i] = &hamtEntry{hash: e.hash, key: e.key, value: entry.value, seq: e.seq}
				newNode.contents[pos] = bucket
				return newNode, false
			}
		}
		newNode.contents[pos] = append(bucket, entry)
		return newNode, true
	}

	return newNode, false
}

func (n *hamtNode) collect(out *[]*hamtEntry) {
	for _, item := range n.contents {
		switch v := item.(type) {
		case *hamtEntry:
			*out = append(*out, v)
		case *hamtNode:
			v.collect(out)
		case []*hamtEntry:
			*out = append(*out, v...)
		}
	}
}

// --- Helper functions ---

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func popcount(x uint32) int {
	return bits.OnesCount32(x)
}
