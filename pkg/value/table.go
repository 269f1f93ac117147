package value

// Table is an open-addressed, linear-probed string-keyed hash table. It
// backs both the interning table and the VM's globals/instance-field maps.
//
// A slot is empty when Key == nil and Value is the nil Value; it is a
// tombstone when Key == nil and Value is the Value true. Tombstones keep
// probe chains walkable after a delete without requiring a full rehash on
// every removal.
type Table struct {
	count    int // live entries plus tombstones; a rehash drops the tombstones
	entries  []entry
}

type entry struct {
	key   *ObjString
	value Value
}

const tableMaxLoad = 0.75

func NewTable() *Table {
	return &Table{}
}

func isTombstone(e *entry) bool {
	return e.key == nil && e.value.Type == Bool && e.value.b
}

func isEmpty(e *entry) bool {
	return e.key == nil && e.value.Type == Nil
}

// findEntry probes linearly from key.Hash mod len(entries), returning the
// slot that Get/Set/Delete should use: the matching live entry if the key
// is present, otherwise the first tombstone seen (so Set can reuse it) or
// else the first empty slot.
func findEntry(entries []entry, key *ObjString) *entry {
	capacity := len(entries)
	index := key.Hash % uint32(capacity)
	var tombstone *entry
	for {
		e := &entries[index]
		if e.key == nil {
			if isEmpty(e) {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// tombstone
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) % uint32(capacity)
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i] = entry{value: NilValue()}
	}

	t.count = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dest := findEntry(entries, old.key)
		dest.key = old.key
		dest.value = old.value
		t.count++
	}
	t.entries = entries
}

// Set inserts or overwrites key -> val and reports whether key was absent
// (true whether it landed in an empty slot or a reused tombstone; false
// when an existing entry was overwritten).
func (t *Table) Set(key *ObjString, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := 8
		if len(t.entries) > 0 {
			capacity = len(t.entries) * 2
		}
		t.adjustCapacity(capacity)
	}

	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && isEmpty(e) {
		t.count++
	}

	e.key = key
	e.value = val
	return isNewKey
}

// Get returns the value stored for key, or (NilValue(), false) if absent.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return NilValue(), false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return NilValue(), false
	}
	return e.value, true
}

// Delete replaces key's entry with a tombstone and reports whether the key
// was present.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = BoolValue(true)
	return true
}

// AddAll copies every live entry from t into dst.
func (t *Table) AddAll(dst *Table) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// FindString probes for an interned string with the same length, hash and
// byte content as chars, returning it so the allocator can reuse the
// canonical instance instead of allocating a duplicate.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := hash % uint32(capacity)
	for {
		e := &t.entries[index]
		if e.key == nil {
			if isEmpty(e) {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) % uint32(capacity)
	}
}

// RemoveWhite implements the collector's weak-reference discipline: any
// entry whose key object was not marked this cycle is deleted before
// sweep frees it, so the table never holds a dangling key.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.IsMarked() {
			t.Delete(e.key)
		}
	}
}

// Mark is called by the GC during mark-roots/blacken for tables that are
// themselves GC roots or reachable edges (globals, instance fields, class
// methods): it marks every live key and value so Table itself need not be
// a GC-managed Obj.
func (t *Table) Mark(markValue func(Value), markObject func(Object)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			markObject(e.key)
			markValue(e.value)
		}
	}
}

// Each calls fn for every live key/value pair. Iteration order is
// unspecified (hash-table bucket order).
func (t *Table) Each(fn func(key *ObjString, val Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func (t *Table) Len() int { return t.count }
