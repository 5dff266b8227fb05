package core

import (
	"fmt"
	"strings"
)

const namespaceSeparator = "/"

// Namespace is an ordered tuple of scope identifiers isolating memory records,
// e.g. ("memories", "user_name").
type Namespace []string

// NewNamespace builds a namespace from its parts.
func NewNamespace(parts ...string) Namespace { return Namespace(parts) }

// ParseNamespace parses the slash separated form produced by Key.
func ParseNamespace(s string) (Namespace, error) {
	s = strings.Trim(strings.TrimSpace(s), namespaceSeparator)
	if s == "" {
		return nil, fmt.Errorf("namespace is empty")
	}
	parts := strings.Split(s, namespaceSeparator)
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("namespace %q has an empty segment", s)
		}
	}
	return Namespace(parts), nil
}

// Validate rejects empty namespaces and segments containing the separator.
func (n Namespace) Validate() error {
	if len(n) == 0 {
		return fmt.Errorf("namespace is empty")
	}
	for _, p := range n {
		if p == "" || strings.Contains(p, namespaceSeparator) {
			return fmt.Errorf("invalid namespace segment %q", p)
		}
	}
	return nil
}

// Key renders the namespace as a storage key.
func (n Namespace) Key() string { return strings.Join(n, namespaceSeparator) }

// String implements fmt.Stringer.
func (n Namespace) String() string { return "(" + strings.Join(n, ", ") + ")" }

// Equal reports whether both namespaces have identical segments.
func (n Namespace) Equal(o Namespace) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if n[i] != o[i] {
			return false
		}
	}
	return true
}

// Contains reports whether o equals n or is nested under it.
func (n Namespace) Contains(o Namespace) bool {
	if len(o) < len(n) {
		return false
	}
	return n.Equal(o[:len(n)])
}
