package http

import (
	"fmt"
	"strings"
	"time"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// exportFilename names a ledger download after the day it was taken.
func exportFilename(now time.Time) string {
	return fmt.Sprintf("soci-ledger-%s.json", now.Format("2006-01-02"))
}
