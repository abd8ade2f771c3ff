package enums

import (
	"fmt"
	"slices"
	"strings"
)

// set lists the allowed values of a Postgres enum in declaration order.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}

// parse trims value and returns the member it names. kind names the enum in
// the error.
func (s set[T]) parse(kind, value string) (T, error) {
	v := T(strings.TrimSpace(value))
	if s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}

func (s set[T]) clone() []T {
	return slices.Clone(s)
}
