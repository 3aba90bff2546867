package executor

import (
	"strings"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// fatalMarkers are stderr fragments that mark a non-zero exit as a real
// failure even when the tool produced stdout. Many AI CLIs exit
// non-zero for advisory problems while still emitting a usable answer;
// these strings identify the cases that never do.
var fatalMarkers = []string{
	"FATAL",
	"Authentication failed",
	"API key",
	"rate limit exceeded",
}

// DetermineStatus classifies a finished execution. Timeout wins over
// everything; exit 0 is success; a non-zero exit is still a success
// when the tool wrote stdout and stderr carries no fatal marker.
// markers overrides the global fatal-marker list when non-nil.
func DetermineStatus(res *Result, markers []string) ccw.Status {
	if res.TimedOut {
		return ccw.StatusTimeout
	}
	if res.ExitCode == 0 {
		return ccw.StatusSuccess
	}
	if markers == nil {
		markers = fatalMarkers
	}
	if res.Stdout != "" && !containsAny(res.Stderr, markers) {
		return ccw.StatusSuccess
	}
	return ccw.StatusError
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
