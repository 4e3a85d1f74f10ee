package zabbix

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Lookup when no record matches.
var ErrNotFound = errors.New("not found")

// FindBy returns the first record matching pred in list order.
// Params: records as returned by the server and match predicate.
// Returns: matched record and true, or zero value and false.
func FindBy[T any](records []T, pred func(T) bool) (T, bool) {
	for _, record := range records {
		if pred(record) {
			return record, true
		}
	}
	var zero T
	return zero, false
}

// Lookup is FindBy with an explicit ErrNotFound for call sites that treat absence as failure.
// Params: records, human-readable lookup description, and match predicate.
// Returns: matched record or wrapped ErrNotFound.
func Lookup[T any](records []T, what string, pred func(T) bool) (T, error) {
	record, ok := FindBy(records, pred)
	if !ok {
		return record, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return record, nil
}
