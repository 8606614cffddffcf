package http

import (
	"time"

	xutil "FinGuard/pkg/util"
)

// ParseTime tries RFC3339, a plain date, and unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
