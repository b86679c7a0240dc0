package http

// headerEntry is one name/value pair. An entry is present iff it is linked
// into its map's list; inline entries survive removal unlinked so their
// slot can be reused without allocation.
type headerEntry struct {
	key    string
	value  string
	prev   *headerEntry
	next   *headerEntry
	linked bool
}

// HeaderMap is an ordered multimap from lowercase header name to value.
// Well-known names resolve to fixed slots in O(1); iteration follows
// insertion order. HeaderMap is not safe for concurrent use.
type HeaderMap struct {
	first *headerEntry
	last  *headerEntry

	// inline holds lazily created slots for well-known names, keyed by
	// canonical slot name.
	inline map[string]*headerEntry
}

// NewHeaderMap returns an empty map.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{}
}

// NewHeaderMapFromPairs builds a map from alternating name/value pairs.
// Names must already be lowercase.
func NewHeaderMapFromPairs(pairs ...string) *HeaderMap {
	if len(pairs)%2 != 0 {
		panic("http: NewHeaderMapFromPairs requires name/value pairs")
	}
	h := NewHeaderMap()
	for i := 0; i < len(pairs); i += 2 {
		h.AddLowerCase(pairs[i], pairs[i+1])
	}
	return h
}

// AddLowerCase inserts name/value. name must already be lowercase. A
// well-known name lands in its inline slot, replacing any existing value;
// other names append a new entry, preserving duplicates in order.
func (h *HeaderMap) AddLowerCase(name, value string) {
	if slot, ok := inlineSlots[name]; ok {
		entry := h.inlineEntry(slot)
		entry.value = value
		h.maybeLink(entry)
		return
	}
	entry := &headerEntry{key: name, value: value}
	h.maybeLink(entry)
}

// Set replaces all values of name with a single value.
func (h *HeaderMap) Set(name, value string) {
	if _, ok := inlineSlots[name]; !ok {
		h.Remove(name)
	}
	h.AddLowerCase(name, value)
}

// Get returns the first value of name, or "" when absent.
func (h *HeaderMap) Get(name string) string {
	name = canonicalName(name)
	for e := h.first; e != nil; e = e.next {
		if e.key == name {
			return e.value
		}
	}
	return ""
}

// Has reports whether name is present.
func (h *HeaderMap) Has(name string) bool {
	name = canonicalName(name)
	for e := h.first; e != nil; e = e.next {
		if e.key == name {
			return true
		}
	}
	return false
}

// Remove unlinks every entry named name. Inline slot storage is retained
// for reuse; the value is cleared.
func (h *HeaderMap) Remove(name string) {
	name = canonicalName(name)
	for e := h.first; e != nil; {
		next := e.next
		if e.key == name {
			h.unlink(e)
		}
		e = next
	}
}

// Iterate visits every present entry exactly once in insertion order. The
// key and value strings borrow the entry and must not be retained beyond
// the callback.
func (h *HeaderMap) Iterate(visit func(key, value string)) {
	for e := h.first; e != nil; e = e.next {
		visit(e.key, e.value)
	}
}

// ByteSize returns the sum of name and value lengths over present entries.
func (h *HeaderMap) ByteSize() int {
	size := 0
	for e := h.first; e != nil; e = e.next {
		size += len(e.key) + len(e.value)
	}
	return size
}

// Len returns the number of present entries.
func (h *HeaderMap) Len() int {
	n := 0
	for e := h.first; e != nil; e = e.next {
		n++
	}
	return n
}

// Clone returns a deep copy preserving order and duplicates.
func (h *HeaderMap) Clone() *HeaderMap {
	out := NewHeaderMap()
	h.Iterate(func(key, value string) {
		out.AddLowerCase(key, value)
	})
	return out
}

func (h *HeaderMap) inlineEntry(slot string) *headerEntry {
	if h.inline == nil {
		h.inline = make(map[string]*headerEntry)
	}
	entry, ok := h.inline[slot]
	if !ok {
		entry = &headerEntry{key: slot}
		h.inline[slot] = entry
	}
	return entry
}

func (h *HeaderMap) maybeLink(entry *headerEntry) {
	if entry.linked {
		return
	}
	entry.linked = true
	if h.last == nil {
		h.first = entry
		h.last = entry
		return
	}
	entry.prev = h.last
	h.last.next = entry
	h.last = entry
}

func (h *HeaderMap) unlink(entry *headerEntry) {
	if !entry.linked {
		return
	}
	if h.first == entry {
		h.first = entry.next
	}
	if h.last == entry {
		h.last = entry.prev
	}
	if entry.prev != nil {
		entry.prev.next = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	}
	entry.prev = nil
	entry.next = nil
	entry.linked = false
	entry.value = ""
}

// canonicalName folds aliases onto their slot name so lookups against
// either spelling agree.
func canonicalName(name string) string {
	if slot, ok := inlineSlots[name]; ok {
		return slot
	}
	return name
}
