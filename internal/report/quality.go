// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"strings"

	"lexredact/internal/audit"
	"lexredact/internal/detector"
	"lexredact/internal/merge"
	"lexredact/internal/suppressions"
)

// Quality thresholds and score weights
const (
	MinPrivacyRecall = 0.95
	MinPrecision     = 0.90
	RecallWeight     = 0.7
	PrecisionWeight  = 0.3

	maxPersonWords = 5

	warnLowRecall    = "Low privacy recall (%.1f%%): review undetected entities"
	warnLowPrecision = "Low precision (%.1f%%): possible over-anonymization"
)

// OverRedaction reasons
const (
	OverAllowlisted = "whitelist_violation"
	OverLegalTitle  = "legal_title_tokenized"
	OverLegalVerb   = "contains_legal_verb"
	OverTooLong     = "too_many_words"
)

// OverRedaction is one applied PERSON value that reads like legal vocabulary
type OverRedaction struct {
	Token    string `json:"token" yaml:"token"`
	Value    string `json:"value" yaml:"value"`
	Reason   string `json:"reason" yaml:"reason"`
	Severity string `json:"severity" yaml:"severity"`
}

// Quality scores one run. Recall counts the values that still read in
// clear after the audit; precision is penalized by suspicious PERSON values.
type Quality struct {
	Detected      int             `json:"detected" yaml:"detected"`
	Leaked        int             `json:"leaked" yaml:"leaked"`
	PrivacyRecall float64         `json:"privacy_recall" yaml:"privacy_recall"`
	Precision     float64         `json:"precision" yaml:"precision"`
	FinalScore    float64         `json:"final_score" yaml:"final_score"`
	RejectionRate float64         `json:"rejection_rate" yaml:"rejection_rate"`
	OverRedacted  []OverRedaction `json:"over_redacted" yaml:"over_redacted"`
	Warnings      []string        `json:"warnings" yaml:"warnings"`
}

// Assess computes the quality of one run. A nil allowlist uses the
// built-in one.
func Assess(m *merge.Result, a *audit.Result, decisions []suppressions.Decision, al *suppressions.Allowlist) Quality {
	if al == nil {
		al = suppressions.DefaultAllowlist()
	}
	q := Quality{PrivacyRecall: 1, Precision: 1, OverRedacted: []OverRedaction{}, Warnings: []string{}}

	applied := 0
	if m != nil {
		applied = len(m.Entities)
		for _, p := range m.Entities {
			if p.Category != detector.Person {
				continue
			}
			if reason, severity, ok := overRedacted(al, p.Raw); ok {
				q.OverRedacted = append(q.OverRedacted, OverRedaction{
					Token: p.Token, Value: truncate(p.Raw, 50), Reason: reason, Severity: severity,
				})
			}
		}
	}

	q.Detected = applied
	if a != nil {
		q.Detected += len(a.Residuals)
		// emergency hard-redaction masks what the fixes could not
		if !a.EmergencyApplied {
			q.Leaked = len(a.Remaining)
		}
	}

	if q.Detected > 0 {
		q.PrivacyRecall = max(0, float64(q.Detected-q.Leaked)/float64(q.Detected))
	}
	if applied > 0 {
		q.Precision = max(0, 1-float64(len(q.OverRedacted))/float64(applied))
	}
	q.FinalScore = RecallWeight*q.PrivacyRecall + PrecisionWeight*q.Precision

	if len(decisions) > 0 {
		s := suppressions.Summarize(decisions)
		q.RejectionRate = float64(s.Rejected) / float64(s.Total)
	}

	if q.PrivacyRecall < MinPrivacyRecall {
		q.Warnings = append(q.Warnings, fmt.Sprintf(warnLowRecall, q.PrivacyRecall*100))
	}
	if q.Precision < MinPrecision {
		q.Warnings = append(q.Warnings, fmt.Sprintf(warnLowPrecision, q.Precision*100))
	}
	return q
}

// overRedacted checks in order of severity; the first hit wins.
func overRedacted(al *suppressions.Allowlist, value string) (string, string, bool) {
	switch {
	case al.IsExact(value):
		return OverAllowlisted, "high", true
	case al.IsTitle(value):
		return OverLegalTitle, "high", true
	case al.ContainsLegalVerb(value):
		return OverLegalVerb, "medium", true
	case len(strings.Fields(value)) > maxPersonWords:
		return OverTooLong, "low", true
	}
	return "", "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
