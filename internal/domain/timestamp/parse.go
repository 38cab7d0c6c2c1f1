package timestamp

import (
	"regexp"
	"strconv"
	"strings"
)

// Recognized overlay grammars, in priority order. The overlay burner writes
// %{pts:hms:6}, but OCR drops leading zeros and whole fields often enough
// that the shorter grammars are needed in practice.
var (
	reHMS = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})\.(\d+)`)
	reMS  = regexp.MustCompile(`\b(\d{2}):(\d{2})\.(\d+)`)
	reM1S = regexp.MustCompile(`\b(\d):(\d{2})\.(\d+)`)
	reSec = regexp.MustCompile(`\b(\d+)\.(\d+)`)
)

// Parse decodes an OCR'd overlay string into seconds. It tries the four
// grammars in priority order and falls back to a best-effort recovery for
// malformed text that still contains both ':' and '.'.
func Parse(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	if m := reHMS.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		return float64(h*3600+min*60+sec) + fraction(m[4]), true
	}
	if m := reMS.FindStringSubmatch(s); m != nil {
		min, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		return float64(min*60+sec) + fraction(m[3]), true
	}
	if m := reM1S.FindStringSubmatch(s); m != nil {
		min, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		return float64(min*60+sec) + fraction(m[3]), true
	}
	// The bare-seconds grammar only applies to colonless text; otherwise it
	// would swallow the seconds field of malformed timestamps and shadow the
	// recovery path.
	if !strings.Contains(s, ":") {
		if m := reSec.FindStringSubmatch(s); m != nil {
			sec, _ := strconv.Atoi(m[1])
			return float64(sec) + fraction(m[2]), true
		}
		return 0, false
	}

	if strings.Contains(s, ".") {
		return recoverMalformed(s)
	}
	return 0, false
}

// recoverMalformed salvages strings like "112:34.567890" where OCR merged
// digits into the minutes field. The token before the first ':' is taken as
// minutes when it is at most 2 digits and under 60; otherwise its last two
// digits are. Tunable heuristic, not a grammar.
func recoverMalformed(s string) (float64, bool) {
	i := strings.Index(s, ":")
	head := digitsOnly(s[:i])
	tail := s[i+1:]

	if head == "" {
		return 0, false
	}

	var minutes int
	if len(head) <= 2 {
		v, err := strconv.Atoi(head)
		if err != nil || v >= 60 {
			return 0, false
		}
		minutes = v
	} else {
		v, err := strconv.Atoi(head[len(head)-2:])
		if err != nil {
			return 0, false
		}
		minutes = v
	}

	m := reSec.FindStringSubmatch(tail)
	if m == nil {
		return 0, false
	}
	sec, _ := strconv.Atoi(m[1])
	if sec >= 60 {
		return 0, false
	}
	return float64(minutes*60+sec) + fraction(m[2]), true
}

// fraction converts a fractional-seconds digit run to seconds, padding or
// truncating to microsecond precision.
func fraction(digits string) float64 {
	if len(digits) > 6 {
		digits = digits[:6]
	}
	for len(digits) < 6 {
		digits += "0"
	}
	us, _ := strconv.Atoi(digits)
	return float64(us) / 1e6
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
