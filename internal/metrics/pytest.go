package metrics

import (
	"regexp"
	"strconv"
	"strings"
)

// summaryRe matches the final pytest summary line, e.g.
// "== 1 failed, 4 passed in 0.12s ==".
var summaryRe = regexp.MustCompile(`=+\s+(?:(\d+)\s+failed,?\s*)?(?:(\d+)\s+passed,?\s*)?[^=]*=+`)

// parsePytestSummary extracts pass/fail counts from pytest output. ok is
// false when no summary line is present (non-pytest acceptance commands).
func parsePytestSummary(output string) (passed, failed int, ok bool) {
	if strings.Contains(output, "no tests ran") {
		return 0, 0, true
	}

	m := summaryRe.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, false
	}
	if m[1] != "" {
		failed, _ = strconv.Atoi(m[1])
	}
	if m[2] != "" {
		passed, _ = strconv.Atoi(m[2])
	}
	if m[1] == "" && m[2] == "" {
		return 0, 0, false
	}
	return passed, failed, true
}
