package internal

// tagSet maps a tag value (namespace, data type, owner) to the set of keys
// carrying it. complete flips to false once the index had to trim entries;
// an incomplete index is never used for lookups, only a full scan is, so
// staleness can degrade performance but never correctness.
type tagSet struct {
	keys     map[string]map[string]struct{}
	complete bool
}

func newTagSet() *tagSet {
	return &tagSet{keys: make(map[string]map[string]struct{}), complete: true}
}

func (ts *tagSet) add(tag, key string) {
	if tag == "" || !ts.complete {
		return
	}
	set, ok := ts.keys[tag]
	if !ok {
		set = make(map[string]struct{})
		ts.keys[tag] = set
	}
	set[key] = struct{}{}
}

func (ts *tagSet) remove(tag, key string) {
	if set, ok := ts.keys[tag]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(ts.keys, tag)
		}
	}
}

// get returns the keys for tag and whether the result may be trusted as a
// complete candidate set.
func (ts *tagSet) get(tag string) ([]string, bool) {
	if !ts.complete {
		return nil, false
	}
	set, ok := ts.keys[tag]
	if !ok {
		return nil, true // complete knowledge: no keys carry this tag
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out, true
}

// drop discards all sets and marks the index incomplete.
func (ts *tagSet) drop() {
	ts.keys = make(map[string]map[string]struct{})
	ts.complete = false
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

// EntryTags is the envelope subset the index tracks per key.
type EntryTags struct {
	Namespace    string
	DataType     string
	Owner        string
	ExpiresAt    int64 // unix nanos, 0 = no expiry
	LastAccessed int64 // unix nanos
}

// Index maintains the derived lookup structures of the entry store:
// by-namespace, by-data-type and by-owner tag maps, an expiration-ordered
// queue and an access-ordered queue.
//
// Concurrency: not internally synchronized. All methods must be called under
// the store mutex, in the same critical section as the entry mutation they
// accompany.
type Index struct {
	byNamespace *tagSet
	byDataType  *tagSet
	byOwner     *tagSet
	expiry      *KeyHeap
	access      *KeyHeap
	tags        map[string]EntryTags // authoritative tag snapshot per key
	maxTracked  int
}

// NewIndex creates an index bounded to maxTracked keys in the tag maps.
// Once the bound is exceeded the tag maps are dropped and Lookup degrades to
// signalling a full scan; the expiry and access queues stay authoritative.
func NewIndex(maxTracked int) *Index {
	return &Index{
		byNamespace: newTagSet(),
		byDataType:  newTagSet(),
		byOwner:     newTagSet(),
		expiry:      NewKeyHeap(),
		access:      NewKeyHeap(),
		tags:        make(map[string]EntryTags),
		maxTracked:  maxTracked,
	}
}

// Put registers or updates key with its tags. Must accompany the entry write.
func (ix *Index) Put(key string, t EntryTags) {
	if old, ok := ix.tags[key]; ok {
		ix.byNamespace.remove(old.Namespace, key)
		ix.byDataType.remove(old.DataType, key)
		ix.byOwner.remove(old.Owner, key)
	} else if ix.maxTracked > 0 && len(ix.tags) >= ix.maxTracked {
		// Bound reached: keep correctness by refusing partial tag knowledge.
		ix.byNamespace.drop()
		ix.byDataType.drop()
		ix.byOwner.drop()
	}
	ix.tags[key] = t
	ix.byNamespace.add(t.Namespace, key)
	ix.byDataType.add(t.DataType, key)
	ix.byOwner.add(t.Owner, key)

	if t.ExpiresAt > 0 {
		ix.expiry.Set(key, t.ExpiresAt)
	} else {
		ix.expiry.Remove(key)
	}
	ix.access.Set(key, t.LastAccessed)
}

// Remove unregisters key. Must accompany the entry removal.
func (ix *Index) Remove(key string) {
	t, ok := ix.tags[key]
	if !ok {
		return
	}
	delete(ix.tags, key)
	ix.byNamespace.remove(t.Namespace, key)
	ix.byDataType.remove(t.DataType, key)
	ix.byOwner.remove(t.Owner, key)
	ix.expiry.Remove(key)
	ix.access.Remove(key)
}

// Touch records an access to key for LRU ordering.
func (ix *Index) Touch(key string, lastAccessed int64) {
	if t, ok := ix.tags[key]; ok {
		t.LastAccessed = lastAccessed
		ix.tags[key] = t
		ix.access.Set(key, lastAccessed)
	}
}

// Len returns the number of tracked keys.
func (ix *Index) Len() int { return len(ix.tags) }

// --------------------------------------------------------------------------
// Lookups
// --------------------------------------------------------------------------

// Lookup returns candidate keys for the given tag filter using the most
// selective usable index. ok is false when no usable index exists and the
// caller must fall back to a full scan. Candidates still need re-validation
// against authoritative entry metadata.
func (ix *Index) Lookup(namespace, dataType, owner string) ([]string, bool) {
	var (
		best      []string
		found     bool
		bestCount = int(^uint(0) >> 1)
	)
	consider := func(ts *tagSet, tag string) {
		if tag == "" {
			return
		}
		keys, usable := ts.get(tag)
		if usable && len(keys) < bestCount {
			best, bestCount, found = keys, len(keys), true
		}
	}
	// Owner is typically the most selective, namespace the least; all three
	// are considered and the smallest candidate set wins.
	consider(ix.byOwner, owner)
	consider(ix.byNamespace, namespace)
	consider(ix.byDataType, dataType)
	return best, found
}

// NextExpired pops and returns the key with the oldest expiration timestamp
// not later than now. ok is false when no such key remains.
func (ix *Index) NextExpired(now int64) (string, bool) {
	key, prio, ok := ix.expiry.Min()
	if !ok || prio > now {
		return "", false
	}
	ix.expiry.Remove(key)
	return key, true
}

// OldestAccessed returns up to n least recently accessed keys for which the
// keep predicate returns false, without removing them. Used by LRU eviction;
// locked entries are excluded via the predicate.
func (ix *Index) OldestAccessed(n int, skip func(key string) bool) []string {
	if n <= 0 {
		return nil
	}
	// Pop candidates off the heap, then restore them. Eviction removes the
	// chosen keys via Remove shortly after, under the same mutex hold.
	type popped struct {
		key  string
		prio int64
	}
	var (
		out     []string
		restore []popped
	)
	for len(out) < n {
		key, prio, ok := ix.access.PopMin()
		if !ok {
			break
		}
		restore = append(restore, popped{key, prio})
		if skip == nil || !skip(key) {
			out = append(out, key)
		}
	}
	for _, p := range restore {
		ix.access.Set(p.key, p.prio)
	}
	return out
}
