// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "fmt"

// AttributeSet is an ordered list of (name, Value) pairs. Lookup by name
// is O(n) but preserves insertion order (spec §3.2); it backs event-class
// attributes (id, name, loglevel, model.emf.uri, stream_id) and trace
// environment dictionaries.
type AttributeSet struct {
	entries []mapEntry
	frozen  bool
}

// NewAttributeSet returns an empty, mutable attribute set.
func NewAttributeSet() *AttributeSet {
	return &AttributeSet{}
}

// Count returns the number of attributes.
func (a *AttributeSet) Count() int { return len(a.entries) }

// GetByIndex returns the name/value pair at position i, in insertion
// order.
func (a *AttributeSet) GetByIndex(i int) (name string, val *Value, err error) {
	if i < 0 || i >= len(a.entries) {
		return "", nil, fmt.Errorf("attrset.GetByIndex: index %d: %w", i, ErrInvalidArgument)
	}
	return a.entries[i].name, a.entries[i].value, nil
}

// GetByName looks up a value by name; ok is false if absent.
func (a *AttributeSet) GetByName(name string) (val *Value, ok bool) {
	for _, e := range a.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// Set appends (name, value) if name is absent, or replaces the existing
// value otherwise.
func (a *AttributeSet) Set(name string, val *Value) error {
	if a.frozen {
		return fmt.Errorf("attrset.Set(%s): %w", name, ErrFrozenObject)
	}
	if name == "" {
		return fmt.Errorf("attrset.Set: empty name: %w", ErrInvalidArgument)
	}
	for i := range a.entries {
		if a.entries[i].name == name {
			a.entries[i].value = val
			return nil
		}
	}
	a.entries = append(a.entries, mapEntry{name: name, value: val})
	return nil
}

// Freeze recursively freezes the set and every contained value.
func (a *AttributeSet) Freeze() {
	if a.frozen {
		return
	}
	a.frozen = true
	for _, e := range a.entries {
		e.value.Freeze()
	}
}

// IsFrozen reports whether the set has been frozen.
func (a *AttributeSet) IsFrozen() bool { return a.frozen }
