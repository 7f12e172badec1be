// Package scopestate maps (assessment, section, item, element, tool) scopes
// to serializable tool state. It is a map, not a cache: nothing expires, and
// callers own the decision to discard item-scoped entries when an item is
// permanently left. Section-scoped ("floating") entries live for the section
// session.
package scopestate

import (
	"encoding/json"
	"strings"
	"sync"
)

const (
	delimiter = "/"

	// sectionScopeMarker fills the item segment of section-scoped keys so
	// they can never collide with an item-scoped key.
	sectionScopeMarker = "~section"

	// emptySegment stands in for empty ids so a missing segment cannot
	// make one scope's key a prefix-alias of another's.
	emptySegment = "~"
)

// escapeSegment makes a key segment safe to join: the delimiter, the escape
// character and the marker prefix cannot occur unescaped, so distinct logical
// scopes always produce distinct keys.
func escapeSegment(s string) string {
	if s == "" {
		return emptySegment
	}
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, delimiter, "%2F")
	if strings.HasPrefix(s, "~") {
		s = "%7E" + s[1:]
	}
	return s
}

func join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = escapeSegment(s)
	}
	return strings.Join(escaped, delimiter)
}

// ElementKey builds the stable key for item-scoped tool state. Deterministic
// and injective: no two distinct logical scopes produce the same key, even
// with empty or delimiter-bearing segments.
func ElementKey(assessmentID, sectionID, itemID, elementID, toolID string) string {
	return join(assessmentID, sectionID, itemID, elementID, toolID)
}

// SectionKey builds the stable key for section-scoped ("floating") tool
// state, independent of any item. The scope marker goes in raw: escaping
// keeps user-supplied ids from ever spelling it, so an item literally named
// "~section" still gets a distinct key.
func SectionKey(assessmentID, sectionID, toolID string) string {
	return strings.Join([]string{
		escapeSegment(assessmentID),
		escapeSegment(sectionID),
		sectionScopeMarker,
		emptySegment,
		escapeSegment(toolID),
	}, delimiter)
}

// itemPrefix is the key prefix shared by every entry scoped to one item.
func itemPrefix(assessmentID, sectionID, itemID string) string {
	return join(assessmentID, sectionID, itemID) + delimiter
}

// Store holds scoped tool state for one session. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]json.RawMessage)}
}

// SetState stores a payload under a key built by ElementKey or SectionKey.
func (s *Store) SetState(key string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = payload
}

// GetState returns the payload for a key. A miss is not an error.
func (s *Store) GetState(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.entries[key]
	return payload, ok
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeleteItemScope discards every entry scoped to one item. Called when the
// caller decides an item has been permanently left; until then, item-scoped
// entries survive navigation for restore-on-return.
func (s *Store) DeleteItemScope(assessmentID, sectionID, itemID string) int {
	prefix := itemPrefix(assessmentID, sectionID, itemID)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
