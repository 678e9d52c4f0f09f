// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"fmt"
	"sort"
)

// Category is the fixed enumeration of PII kinds.
type Category int

const (
	CategoryUnknown Category = iota
	NationalID
	TaxID
	ForeignID
	Email
	Phone
	Account
	CaseNumber
	Mailbox
	RecordNumber
	Resolution
	RegistryEntry
	BarRegistration
	Plate
	Court
	ProsecutorOffice
	Person
	Address
	Organization
	Location
	Signature
	Stamp
	Fingerprint
)

var categoryNames = map[Category]string{
	NationalID:       "NATIONAL_ID",
	TaxID:            "TAX_ID",
	ForeignID:        "FOREIGN_ID",
	Email:            "EMAIL",
	Phone:            "PHONE",
	Account:          "ACCOUNT",
	CaseNumber:       "CASE_NUMBER",
	Mailbox:          "MAILBOX",
	RecordNumber:     "RECORD_NUMBER",
	Resolution:       "RESOLUTION",
	RegistryEntry:    "REGISTRY_ENTRY",
	BarRegistration:  "BAR_REGISTRATION",
	Plate:            "PLATE",
	Court:            "COURT",
	ProsecutorOffice: "PROSECUTOR_OFFICE",
	Person:           "PERSON",
	Address:          "ADDRESS",
	Organization:     "ORGANIZATION",
	Location:         "LOCATION",
	Signature:        "SIGNATURE",
	Stamp:            "STAMP",
	Fingerprint:      "FINGERPRINT",
}

// categoryPriority is the total order used to settle category conflicts.
// Higher wins. Every category has a distinct rank.
var categoryPriority = map[Category]int{
	TaxID:            220,
	NationalID:       210,
	ForeignID:        200,
	Email:            190,
	CaseNumber:       180,
	Account:          170,
	Phone:            160,
	Mailbox:          150,
	RecordNumber:     140,
	Resolution:       130,
	RegistryEntry:    120,
	BarRegistration:  110,
	Plate:            100,
	Court:            90,
	ProsecutorOffice: 80,
	Fingerprint:      70,
	Signature:        60,
	Stamp:            50,
	Person:           40,
	Address:          30,
	Organization:     20,
	Location:         10,
}

var categoryByName = func() map[string]Category {
	m := make(map[string]Category, len(categoryNames))
	for c, n := range categoryNames {
		m[n] = c
	}
	return m
}()

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Priority returns the rank of the category in the conflict table.
func (c Category) Priority() int {
	return categoryPriority[c]
}

// Structural reports whether the category has a rigid surface shape.
func (c Category) Structural() bool {
	return c.Priority() >= Plate.Priority()
}

// Outranks reports whether c wins a conflict against other.
func (c Category) Outranks(other Category) bool {
	return c.Priority() > other.Priority()
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, ok := ParseCategory(string(b))
	if !ok {
		return fmt.Errorf("unknown category %q", string(b))
	}
	*c = parsed
	return nil
}

// ParseCategory resolves an enumeration name.
func ParseCategory(name string) (Category, bool) {
	c, ok := categoryByName[name]
	return c, ok
}

// AllCategories returns every category, highest priority first.
func AllCategories() []Category {
	out := make([]Category, 0, len(categoryNames))
	for c := range categoryNames {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outranks(out[j]) })
	return out
}

// Layer records which stage produced an entity.
type Layer int

const (
	LayerAudit Layer = iota
	LayerPropagated
	LayerNER
	LayerLLM
	LayerHeuristic
	LayerSection
	LayerDeterministic
)

var layerNames = map[Layer]string{
	LayerAudit:         "audit",
	LayerPropagated:    "propagated",
	LayerNER:           "ner",
	LayerLLM:           "llm",
	LayerHeuristic:     "heuristic",
	LayerSection:       "section",
	LayerDeterministic: "deterministic",
}

func (l Layer) String() string {
	if n, ok := layerNames[l]; ok {
		return n
	}
	return "unknown"
}

// Rank orders layers by specificity: deterministic > section > heuristic > ner = llm.
func (l Layer) Rank() int {
	switch l {
	case LayerDeterministic:
		return 4
	case LayerSection:
		return 3
	case LayerHeuristic:
		return 2
	case LayerNER, LayerLLM:
		return 1
	default:
		return 0
	}
}

// MarshalText encodes the layer by name.
func (l Layer) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a layer name.
func (l *Layer) UnmarshalText(b []byte) error {
	for layer, name := range layerNames {
		if name == string(b) {
			*l = layer
			return nil
		}
	}
	return fmt.Errorf("unknown layer %q", string(b))
}
