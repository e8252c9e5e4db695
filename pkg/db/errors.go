package db

import "strings"

// IsUniqueViolation reports whether err references a unique constraint
// violation. When constraintName is given the match is narrowed to that
// constraint; the message check keeps this working under both Postgres and
// the sqlite driver used in tests.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
