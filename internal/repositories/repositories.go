package repositories

import (
	"database/sql"
	"time"
)

// nullable converts an empty string to a NULL parameter.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// stringOrEmpty unwraps a nullable text column.
func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// now returns the timestamp written to created_at/updated_at columns.
func now() time.Time {
	return time.Now().UTC()
}
