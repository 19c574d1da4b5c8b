package form

import (
	"sort"
	"strings"
	"sync"
)

// Values holds the whole form's current state as a flat map keyed by
// dot-separated field paths (e.g. "customer.name", "lines.0.quantity").
type Values map[string]any

// Get returns the value at path, or nil when unset.
func (v Values) Get(path string) any {
	return v[path]
}

// Slice returns the sub-map of values under prefix with the prefix stripped,
// e.g. Slice("customer") maps "customer.name" to "name".
func (v Values) Slice(prefix string) map[string]any {
	out := make(map[string]any)
	p := prefix + "."
	for k, val := range v {
		if strings.HasPrefix(k, p) {
			out[strings.TrimPrefix(k, p)] = val
		}
	}
	return out
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Subscriber receives a snapshot of the form values after every change.
type Subscriber func(values Values)

// Store is an observable form value store. It owns the current values, tracks
// which fields have been written since the last reset (the dirty set), keeps
// per-field validation rules, and notifies subscribers on every change.
//
// All methods are safe for concurrent use. Subscribers run synchronously on
// the writer's goroutine and must not call back into the store's setters.
type Store struct {
	mu          sync.Mutex
	values      Values
	dirty       map[string]struct{}
	rules       map[string][]FieldRule
	subscribers map[int]Subscriber
	nextSubID   int
}

// NewStore creates a store seeded with initial values. Initial values do not
// mark fields dirty.
func NewStore(initial Values) *Store {
	s := &Store{
		values:      make(Values),
		dirty:       make(map[string]struct{}),
		rules:       make(map[string][]FieldRule),
		subscribers: make(map[int]Subscriber),
	}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

// RegisterRule attaches a field-level rule used by ValidateFields.
func (s *Store) RegisterRule(path string, rules ...FieldRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[path] = append(s.rules[path], rules...)
}

// Set writes one field value, marks it dirty and notifies subscribers.
func (s *Store) Set(path string, value any) {
	s.SetAll(Values{path: value})
}

// SetAll writes several field values in one change notification.
func (s *Store) SetAll(values Values) {
	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
		s.dirty[k] = struct{}{}
	}
	snapshot := s.values.clone()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

// Delete removes a field value entirely (unmounting a conditional field).
// The field stays in the dirty set.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	delete(s.values, path)
	s.dirty[path] = struct{}{}
	snapshot := s.values.clone()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.clone()
}

// Get returns one field's current value.
func (s *Store) Get(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[path]
}

// IsDirty reports whether any field has been written since the last reset.
func (s *Store) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// DirtyFields returns the sorted list of dirty field paths.
func (s *Store) DirtyFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResetDirty clears the dirty set, e.g. after a successful submission or
// after seeding values from a recovered draft.
func (s *Store) ResetDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[string]struct{})
}

// Subscribe registers a change listener and returns an unsubscribe function.
func (s *Store) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// ValidateFields runs the registered field rules for the given paths against
// the current values and returns one issue per failing rule.
func (s *Store) ValidateFields(paths []string) []Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issues []Issue
	for _, path := range paths {
		for _, rule := range s.rules[path] {
			if err := rule(s.values[path]); err != nil {
				issues = append(issues, Issue{Path: path, Message: err.Error()})
			}
		}
	}
	return issues
}

// ValidateAll runs every registered field rule against the current values.
func (s *Store) ValidateAll() []Issue {
	s.mu.Lock()
	paths := make([]string, 0, len(s.rules))
	for p := range s.rules {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	sort.Strings(paths)
	return s.ValidateFields(paths)
}
