package utils

import (
	"strconv"
	"strings"
)

// ParseOptionalBool returns nil for an empty value so callers can tell "unset" apart from false.
func ParseOptionalBool(value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ParseOptionalInt returns defaultValue when value is empty.
func ParseOptionalInt(value string, defaultValue int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

// ParseOptionalFloat returns 0 when value is empty.
func ParseOptionalFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}
