// Package uuid wraps google/uuid for the identifiers used across pocketledger.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New returns a time-ordered UUIDv7 string, used for every primary key so that
// rows sort by creation time in both Postgres and SQLite.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// Only fails when the random source is exhausted.
		return googleuuid.NewString()
	}
	return id.String()
}

// Parse validates s and returns its canonical lower-case form.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid reports whether s is a valid UUID of any version.
func IsValid(s string) bool {
	return googleuuid.Validate(s) == nil
}
