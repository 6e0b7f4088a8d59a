package logger

import "strings"

// RedactEmail masks a subscriber address for safe logging. The logger runs
// every address-bearing field through this before a line is emitted, so
// admission and validation logs never carry a full address.
// "maria.achilleos@aol.com" → "ma***@aol.com"
// Short local parts (≤2 chars) are fully masked: "ab@aol.com" → "***@aol.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
