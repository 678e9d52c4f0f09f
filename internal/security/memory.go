// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package security

import "os"

// SecureString holds a credential with best-effort scrubbing on Clear.
//
// Go's garbage collector may copy memory, and Value() returns an immutable
// copy that cannot be zeroed. Clear() only shortens the exposure window.
type SecureString struct {
	data []byte
}

// NewSecureString creates a new SecureString by copying s into a mutable byte slice.
func NewSecureString(s string) *SecureString {
	data := make([]byte, len(s))
	copy(data, s)
	return &SecureString{data: data}
}

// FromEnv reads a credential from the named environment variable.
// An unset or empty variable yields an empty SecureString.
func FromEnv(name string) *SecureString {
	if name == "" {
		return NewSecureString("")
	}
	return NewSecureString(os.Getenv(name))
}

// Value returns the secret. Each call creates a copy Clear cannot reach.
func (ss *SecureString) Value() string {
	if ss == nil {
		return ""
	}
	return string(ss.data)
}

// IsEmpty reports whether no secret is held.
func (ss *SecureString) IsEmpty() bool {
	return ss == nil || len(ss.data) == 0
}

// String keeps the secret out of logs and %v formatting.
func (ss *SecureString) String() string {
	if ss.IsEmpty() {
		return ""
	}
	return "[REDACTED]"
}

// MarshalText keeps the secret out of serialized reports.
func (ss *SecureString) MarshalText() ([]byte, error) {
	return []byte(ss.String()), nil
}

// Clear overwrites the internal byte slice with zeros and releases it.
func (ss *SecureString) Clear() {
	if ss == nil || ss.data == nil {
		return
	}
	Wipe(ss.data)
	ss.data = nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
