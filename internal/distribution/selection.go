package distribution

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Selection is the ordered, id-deduplicated set of units a quote targets.
// Every mutation returns a new Selection; the receiver is never modified.
type Selection struct {
	units []Unit
}

// NewSelection builds a selection from units, skipping malformed records and
// duplicates.
func NewSelection(units ...Unit) (Selection, error) {
	s, _, err := Selection{}.AddAll(units)
	return s, err
}

// Units returns a copy of the selected units in selection order.
func (s Selection) Units() []Unit {
	out := make([]Unit, len(s.units))
	copy(out, s.units)
	return out
}

// Len returns the number of selected units.
func (s Selection) Len() int { return len(s.units) }

// Contains reports whether a unit with the id is selected.
func (s Selection) Contains(id string) bool {
	return s.indexOf(id) >= 0
}

// Add selects a unit. Malformed units are rejected and an already selected id
// is a no-op.
func (s Selection) Add(u Unit) (Selection, error) {
	if err := u.Check(); err != nil {
		return s, err
	}
	if s.Contains(u.ID) {
		return s, nil
	}
	next := make([]Unit, len(s.units), len(s.units)+1)
	copy(next, s.units)
	next = append(next, normalise(u))
	return Selection{units: next}, nil
}

// AddAll selects several units in one transition. Valid units are added even
// when others are rejected; the rejections are joined into the returned error.
func (s Selection) AddAll(units []Unit) (Selection, int, error) {
	next := make([]Unit, len(s.units), len(s.units)+len(units))
	copy(next, s.units)
	seen := make(map[string]struct{}, len(next)+len(units))
	for _, u := range next {
		seen[u.ID] = struct{}{}
	}
	var (
		added int
		errs  error
	)
	for _, u := range units {
		if err := u.Check(); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		next = append(next, normalise(u))
		added++
	}
	return Selection{units: next}, added, errs
}

// Remove deselects the unit with the id. Its overrides are discarded with it.
func (s Selection) Remove(id string) (Selection, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return s, false
	}
	next := make([]Unit, 0, len(s.units)-1)
	next = append(next, s.units[:idx]...)
	next = append(next, s.units[idx+1:]...)
	return Selection{units: next}, true
}

// Clear deselects everything.
func (s Selection) Clear() Selection {
	return Selection{}
}

// SetOverride sets or clears (count == nil) the manual flyer count of a
// selected unit for a housing category. Counts are clamped to the household
// count of that category.
func (s Selection) SetOverride(id string, a Audience, count *int) (Selection, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return s, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	updated, err := s.units[idx].withOverride(a, count)
	if err != nil {
		return s, err
	}
	next := s.Units()
	next[idx] = updated
	return Selection{units: next}, nil
}

func (s Selection) indexOf(id string) int {
	for i, u := range s.units {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// normalise keeps incoming overrides inside their bounds.
func normalise(u Unit) Unit {
	u.MultiFamilyOverride = clamp(u.MultiFamilyOverride, u.Households.MultiFamily)
	u.SingleFamilyOverride = clamp(u.SingleFamilyOverride, u.Households.SingleFamily)
	return u
}

// MarshalJSON encodes the selection as its ordered unit list.
func (s Selection) MarshalJSON() ([]byte, error) {
	if s.units == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.units)
}

// UnmarshalJSON restores a selection, re-applying the selection invariants.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var units []Unit
	if err := json.Unmarshal(data, &units); err != nil {
		return err
	}
	restored, _, err := Selection{}.AddAll(units)
	if err != nil {
		return err
	}
	*s = restored
	return nil
}
