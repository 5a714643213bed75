package tsid

// Set is an insertion-ordered set of identifiers keyed by case-folded
// unique string. Iteration order is stable for a given sequence of calls.
type Set struct {
	members map[string]Identifier
	order   []string
	removed bool
}

// NewSet returns a set holding ids in the given order.
func NewSet(ids ...Identifier) *Set {
	s := &Set{members: make(map[string]Identifier, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s *Set) Add(id Identifier) bool {
	key := id.LookupKey()
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = id
	s.order = append(s.order, key)
	return true
}

// AddAll inserts every identifier of other, preserving other's order.
func (s *Set) AddAll(other *Set) {
	for _, id := range other.Items() {
		s.Add(id)
	}
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id Identifier) bool {
	key := id.LookupKey()
	if _, ok := s.members[key]; !ok {
		return false
	}
	delete(s.members, key)
	s.removed = true
	return true
}

// RemoveAll deletes every member of other.
func (s *Set) RemoveAll(other *Set) {
	for _, id := range other.Items() {
		s.Remove(id)
	}
}

// RetainAll keeps only members also present in other.
func (s *Set) RetainAll(other *Set) {
	for key, id := range s.members {
		if !other.Contains(id) {
			delete(s.members, key)
			s.removed = true
		}
	}
}

// Contains reports membership.
func (s *Set) Contains(id Identifier) bool {
	_, ok := s.members[id.LookupKey()]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.members) }

// Items returns members in insertion order.
func (s *Set) Items() []Identifier {
	s.compact()
	out := make([]Identifier, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.members[key])
	}
	return out
}

func (s *Set) compact() {
	if !s.removed {
		return
	}
	kept := s.order[:0]
	seen := make(map[string]struct{}, len(s.members))
	for _, key := range s.order {
		if _, ok := s.members[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, key)
	}
	s.order = kept
	s.removed = false
}
