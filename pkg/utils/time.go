package utils

import "time"

// AdminTimeLayout is the short timestamp shown in operator listings.
const AdminTimeLayout = "2006-01-02 15:04"

// Now returns the current time in UTC timezone
func Now() time.Time {
	return time.Now().UTC()
}

// FormatISO8601 formats a time.Time to ISO8601 format in UTC
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatAdmin formats t for operator listings. Zero time yields "".
func FormatAdmin(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(AdminTimeLayout)
}
