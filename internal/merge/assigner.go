// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"sort"

	"lexredact/internal/detector"
)

// Assignment is the placeholder sequence number of one distinct value
type Assignment struct {
	Category detector.Category `json:"category" yaml:"category"`
	Number   int               `json:"number" yaml:"number"`
	Token    string            `json:"token" yaml:"token"`
	order    int
}

// Assigner hands out one sequence number per (category, normalized value),
// increasing per category in the order values are first seen. It is owned
// by a single document run.
type Assigner struct {
	next map[detector.Category]int
	ids  map[detector.ValueKey]Assignment
}

// NewAssigner creates an empty assigner
func NewAssigner() *Assigner {
	return &Assigner{
		next: make(map[detector.Category]int),
		ids:  make(map[detector.ValueKey]Assignment),
	}
}

// Assign returns the assignment for key, creating the next number on first sight.
func (a *Assigner) Assign(key detector.ValueKey) Assignment {
	if got, ok := a.ids[key]; ok {
		return got
	}
	a.next[key.Category]++
	got := Assignment{
		Category: key.Category,
		Number:   a.next[key.Category],
		Token:    detector.Placeholder(key.Category, a.next[key.Category]),
		order:    len(a.ids),
	}
	a.ids[key] = got
	return got
}

// Reserve makes the next number of category larger than n. It is used
// when text already carries tokens up to n.
func (a *Assigner) Reserve(category detector.Category, n int) {
	if a.next[category] < n {
		a.next[category] = n
	}
}

// ReserveTokens reserves every placeholder already present in text
func (a *Assigner) ReserveTokens(text string) {
	for _, s := range detector.PlaceholderSpans(text) {
		if c, n, ok := detector.ParsePlaceholder(text[s.Start:s.End]); ok {
			a.Reserve(c, n)
		}
	}
}

// Lookup returns the existing assignment for key
func (a *Assigner) Lookup(key detector.ValueKey) (Assignment, bool) {
	got, ok := a.ids[key]
	return got, ok
}

// Len returns the number of distinct values assigned
func (a *Assigner) Len() int {
	return len(a.ids)
}

// Counts returns the number of distinct values per category. Reserved
// numbers are not values.
func (a *Assigner) Counts() map[detector.Category]int {
	out := make(map[detector.Category]int, len(a.next))
	for key := range a.ids {
		out[key.Category]++
	}
	return out
}

// Assignments returns every assignment in creation order
func (a *Assigner) Assignments() []Assignment {
	out := make([]Assignment, 0, len(a.ids))
	for _, got := range a.ids {
		out = append(out, got)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}
