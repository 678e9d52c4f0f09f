// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package suppressions keeps legal vocabulary from being redacted: the
// embedded legal allowlist, operator allowlist rules and the filter that
// applies both to candidate entities.
package suppressions

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
)

// Reason explains a filter decision
type Reason string

const (
	ReasonStructured          Reason = "structured_pii"
	ReasonSectionExempt       Reason = "section_exempt"
	ReasonSectionDownWeighted Reason = "section_down_weighted"
	ReasonWhitelistExact      Reason = "whitelist_exact"
	ReasonWhitelistFuzzy      Reason = "whitelist_fuzzy"
	ReasonWhitelistPattern    Reason = "whitelist_pattern"
	ReasonWhitelistEnclosing  Reason = "whitelist_enclosing"
	ReasonLegalVerb           Reason = "contains_legal_verb"
	ReasonLegalConnector      Reason = "legal_connector"
	ReasonLegalTitle          Reason = "legal_title"
	ReasonAllExcluded         Reason = "all_excluded_words"
	ReasonTooLong             Reason = "too_long_not_name"
	ReasonTooShort            Reason = "too_short"
	ReasonProperName          Reason = "proper_name"
	ReasonPossibleName        Reason = "possible_name"
	ReasonDefaultRejectPerson Reason = "default_reject_person"
	ReasonAddressPattern      Reason = "address_pattern"
	ReasonNoAddressPattern    Reason = "no_address_pattern"
	ReasonLegalEntity         Reason = "legal_entity"
	ReasonSignatureMark       Reason = "signature_mark"
	ReasonBelowThreshold      Reason = "below_threshold"
	ReasonDefaultAccept       Reason = "default_accept"
)

const (
	// DefaultThreshold is the minimum confidence of a non-section entity
	DefaultThreshold = 0.7

	// SectionPenalty scales the confidence of section entities that would
	// otherwise be rejected
	SectionPenalty = 0.5

	properNameConfidence   = 0.9
	possibleNameConfidence = 0.7
)

// Decision records what the filter did with one candidate.
type Decision struct {
	Category           detector.Category `json:"category" yaml:"category"`
	Span               detector.Span     `json:"span" yaml:"span"`
	Layer              detector.Layer    `json:"layer" yaml:"layer"`
	Value              string            `json:"-" yaml:"-"`
	Accepted           bool              `json:"accepted" yaml:"accepted"`
	Reason             Reason            `json:"reason" yaml:"reason"`
	Detail             Reason            `json:"detail,omitempty" yaml:"detail,omitempty"`
	RuleID             string            `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	OriginalConfidence float64           `json:"original_confidence" yaml:"original_confidence"`
	AdjustedConfidence float64           `json:"adjusted_confidence" yaml:"adjusted_confidence"`
}

// Filter is the anti-over-redaction stage.
type Filter struct {
	allowlist *Allowlist
	rules     *SuppressionManager
	threshold float64
	observer  *observability.StandardObserver
}

// NewFilter creates a filter. A nil allowlist uses the embedded one; nil
// rules means no operator rules; a non-positive threshold uses the default.
func NewFilter(allowlist *Allowlist, rules *SuppressionManager, threshold float64) *Filter {
	if allowlist == nil {
		allowlist = DefaultAllowlist()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Filter{allowlist: allowlist, rules: rules, threshold: threshold}
}

// SetObserver sets the observability component
func (f *Filter) SetObserver(observer *observability.StandardObserver) {
	f.observer = observer
}

// Allowlist returns the vocabulary the filter applies
func (f *Filter) Allowlist() *Allowlist {
	return f.allowlist
}

// Apply returns the entities of text that survive with their adjusted
// confidence, and one decision per input entity.
func (f *Filter) Apply(text string, entities []detector.Entity) ([]detector.Entity, []Decision) {
	var finishTiming func(bool, map[string]interface{})
	if f.observer != nil {
		finishTiming = f.observer.StartTiming("filter", "apply", "entities")
	}

	kept := make([]detector.Entity, 0, len(entities))
	decisions := make([]Decision, 0, len(entities))
	for _, e := range entities {
		d := f.DecideIn(text, e)
		decisions = append(decisions, d)
		if d.Accepted {
			e.Confidence = d.AdjustedConfidence
			kept = append(kept, e)
		}
	}

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{"input": len(entities), "kept": len(kept)})
	}
	return kept, decisions
}

// Decide evaluates one candidate on its value alone. Deterministic and
// structural entities are always kept; section entities are never removed,
// only down-weighted.
func (f *Filter) Decide(e detector.Entity) Decision {
	return f.DecideIn("", e)
}

// DecideIn is Decide with the document text, so a candidate that is only
// part of an allowlisted phrase, e.g. "Justicia y Derechos Humanos" inside
// "Ministerio de Justicia y Derechos Humanos", is rejected as well.
func (f *Filter) DecideIn(text string, e detector.Entity) Decision {
	d := Decision{
		Category:           e.Category,
		Span:               e.Span,
		Layer:              e.Layer,
		Value:              e.Raw,
		OriginalConfidence: e.Confidence,
		AdjustedConfidence: e.Confidence,
	}

	if e.Layer == detector.LayerDeterministic || e.Category.Structural() {
		d.Accepted, d.Reason = true, ReasonStructured
		return d
	}

	accepted, reason, confidence, ruleID := f.classify(text, e)
	d.RuleID = ruleID

	if e.Layer == detector.LayerSection {
		d.Accepted, d.Detail = true, reason
		if accepted {
			d.Reason = ReasonSectionExempt
			d.AdjustedConfidence = confidence
		} else {
			d.Reason = ReasonSectionDownWeighted
			d.AdjustedConfidence = e.Confidence * SectionPenalty
		}
		return d
	}

	d.AdjustedConfidence = confidence
	switch {
	case !accepted:
		d.Reason = reason
	case confidence < f.threshold:
		d.Reason, d.Detail = ReasonBelowThreshold, reason
	default:
		d.Accepted, d.Reason = true, reason
	}
	return d
}

func (f *Filter) classify(text string, e detector.Entity) (bool, Reason, float64, string) {
	value := strings.TrimSpace(e.Raw)
	conf := e.Confidence
	if len([]rune(value)) < 2 {
		return false, ReasonTooShort, conf, ""
	}

	if f.rules != nil {
		if ok, rule := f.rules.IsSuppressed(value, e.Category); ok {
			if rule.Phrase != "" {
				return false, ReasonWhitelistExact, conf, rule.ID
			}
			return false, ReasonWhitelistPattern, conf, rule.ID
		}
	}

	switch e.Category {
	case detector.Signature, detector.Stamp, detector.Fingerprint:
		return true, ReasonSignatureMark, conf, ""
	}

	if f.allowlist.IsExact(value) {
		return false, ReasonWhitelistExact, conf, ""
	}
	if text != "" {
		if _, ok := f.allowlist.Enclosing(text, e.Span); ok {
			return false, ReasonWhitelistEnclosing, conf, ""
		}
	}
	if _, ok := f.allowlist.FuzzyMatch(value); ok {
		return false, ReasonWhitelistFuzzy, conf, ""
	}

	switch e.Category {
	case detector.Person:
		return f.classifyPerson(value, conf)
	case detector.Address:
		if hasAddressIndicator(value) || strings.ContainsAny(value, "0123456789") {
			return true, ReasonAddressPattern, conf, ""
		}
		return false, ReasonNoAddressPattern, conf, ""
	case detector.Court, detector.ProsecutorOffice:
		return true, ReasonLegalEntity, conf, ""
	case detector.Organization, detector.Location:
		if f.allowlist.AllExcluded(value) {
			return false, ReasonAllExcluded, conf, ""
		}
	}
	return true, ReasonDefaultAccept, conf, ""
}

func (f *Filter) classifyPerson(value string, conf float64) (bool, Reason, float64, string) {
	al := f.allowlist
	switch {
	case al.MatchesPattern(value):
		return false, ReasonWhitelistPattern, conf, ""
	case al.ContainsLegalVerb(value):
		return false, ReasonLegalVerb, conf, ""
	case al.IsConnector(value):
		return false, ReasonLegalConnector, conf, ""
	case al.IsTitle(value):
		return false, ReasonLegalTitle, conf, ""
	case al.AllExcluded(value):
		return false, ReasonAllExcluded, conf, ""
	}

	proper := f.looksLikeProperName(value)
	words := strings.Fields(value)
	if len(words) > 5 && !proper {
		return false, ReasonTooLong, conf, ""
	}
	if proper {
		return true, ReasonProperName, max(conf, properNameConfidence), ""
	}
	if f.possibleName(words, value) {
		return true, ReasonPossibleName, min(conf, possibleNameConfidence), ""
	}
	return false, ReasonDefaultRejectPerson, conf, ""
}

var (
	capitalizedWord = regexp.MustCompile(`^\p{Lu}\p{Ll}*$`)
	upperWord       = regexp.MustCompile(`^\p{Lu}+$`)
	nameChars       = regexp.MustCompile(`^[\p{L}\s]+$`)
)

// looksLikeProperName reports a 2 to 5 word value of capitalized or
// upper-case words, at least two of which are not legal vocabulary.
func (f *Filter) looksLikeProperName(value string) bool {
	words := strings.Fields(value)
	if len(words) < 2 || len(words) > 5 || len(value) > 60 {
		return false
	}
	al := f.allowlist
	if al.IsExact(value) || al.MatchesPattern(value) || al.ContainsLegalVerb(value) ||
		al.IsConnector(value) || al.IsTitle(value) || al.AllExcluded(value) {
		return false
	}

	valid := 0
	for _, w := range words {
		if (capitalizedWord.MatchString(w) || upperWord.MatchString(w)) && !al.IsExcludedWord(w) {
			valid++
		}
	}
	return valid >= 2
}

func (f *Filter) possibleName(words []string, value string) bool {
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	if strings.IndexFunc(value, unicode.IsUpper) < 0 || !nameChars.MatchString(value) {
		return false
	}
	nonExcluded := 0
	for _, w := range words {
		if !f.allowlist.IsExcludedWord(w) {
			nonExcluded++
		}
	}
	return nonExcluded >= 2
}

var addressIndicator = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:av|avenida|jr|jir[oó]n|calle|mz|manzana|lt|lote|urb|urbanizaci[oó]n|dpto|departamento|piso|int|interior|km|kil[oó]metro|bloque|block|psje|pasaje|aa\.?\s?hh)(?:$|[^\p{L}])`)

func hasAddressIndicator(value string) bool {
	return addressIndicator.MatchString(value)
}

// ReasonCount counts decisions sharing a reason
type ReasonCount struct {
	Count    int `json:"count" yaml:"count"`
	Accepted int `json:"accepted" yaml:"accepted"`
	Rejected int `json:"rejected" yaml:"rejected"`
}

// Summary groups filter decisions by reason
type Summary struct {
	Total    int                    `json:"total" yaml:"total"`
	Accepted int                    `json:"accepted" yaml:"accepted"`
	Rejected int                    `json:"rejected" yaml:"rejected"`
	ByReason map[Reason]ReasonCount `json:"by_reason" yaml:"by_reason"`
}

// Summarize groups decisions by reason
func Summarize(decisions []Decision) Summary {
	s := Summary{Total: len(decisions), ByReason: map[Reason]ReasonCount{}}
	for _, d := range decisions {
		rc := s.ByReason[d.Reason]
		rc.Count++
		if d.Accepted {
			rc.Accepted++
			s.Accepted++
		} else {
			rc.Rejected++
			s.Rejected++
		}
		s.ByReason[d.Reason] = rc
	}
	return s
}

// Reasons returns the reasons present in the summary, sorted
func (s Summary) Reasons() []Reason {
	out := make([]Reason, 0, len(s.ByReason))
	for r := range s.ByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
