package util

import (
	"fmt"
	"strings"
)

// NormalizeTicker trims and upper-cases a symbol. When suffix is set, short
// symbols without an exchange suffix get it appended.
func NormalizeTicker(raw, suffix string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if len(t) < 2 || len(t) > 10 {
		return "", fmt.Errorf("ticker %q must be 2 to 10 characters", raw)
	}
	for _, r := range t {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '^' || r == '=') {
			return "", fmt.Errorf("ticker %q contains invalid character %q", raw, r)
		}
	}
	if suffix != "" && len(t) <= 6 && !strings.Contains(t, ".") {
		t += suffix
	}
	return t, nil
}
