package aggregate

import (
	"errors"
	"maps"
	"slices"
)

var ErrMalformedTally = errors.New("malformed tally")

// Tally is a nested counter: category -> key -> count. The zero value is
// not usable, create one with NewTally or a literal.
type Tally map[string]map[string]int64

func NewTally() Tally {
	return Tally{}
}

// Add adds n to the counter of key in category.
func (t Tally) Add(category, key string, n int64) {
	c, ok := t[category]
	if !ok {
		c = map[string]int64{}
		t[category] = c
	}
	c[key] += n
}

func (t Tally) Inc(category, key string) {
	t.Add(category, key, 1)
}

// Touch makes sure category exists so it is rendered even when empty.
func (t Tally) Touch(category string) {
	if _, ok := t[category]; !ok {
		t[category] = map[string]int64{}
	}
}

func (t Tally) Get(category, key string) int64 {
	return t[category][key]
}

// Sum returns the total of all counters in category.
func (t Tally) Sum(category string) int64 {
	var sum int64
	for _, v := range t[category] {
		sum += v
	}
	return sum
}

// Keys returns the keys of category in ascending order.
func (t Tally) Keys(category string) []string {
	return slices.Sorted(maps.Keys(t[category]))
}

// Merge adds every counter of o into t and returns t. Merging is
// commutative and associative, so results can be combined in any order.
func (t Tally) Merge(o Tally) Tally {
	for category, counters := range o {
		t.Touch(category)
		for key, n := range counters {
			t[category][key] += n
		}
	}
	return t
}

// Clone returns a deep copy of t.
func (t Tally) Clone() Tally {
	return NewTally().Merge(t)
}

// Merge combines tallies into a new one without modifying them.
func Merge(tallies ...Tally) Tally {
	out := NewTally()
	for _, t := range tallies {
		out.Merge(t)
	}
	return out
}
