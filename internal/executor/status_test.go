package executor

import (
	"testing"

	"github.com/ccw-dev/ccw/internal/ccw"
)

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name    string
		res     Result
		markers []string
		want    ccw.Status
	}{
		{
			name: "clean exit",
			res:  Result{ExitCode: 0, Stdout: "42"},
			want: ccw.StatusSuccess,
		},
		{
			name: "timeout wins over exit code",
			res:  Result{ExitCode: 0, TimedOut: true},
			want: ccw.StatusTimeout,
		},
		{
			name: "nonzero with usable stdout",
			res:  Result{ExitCode: 1, Stdout: "here is your answer"},
			want: ccw.StatusSuccess,
		},
		{
			name: "fatal marker overrides stdout",
			res:  Result{ExitCode: 1, Stdout: "partial", Stderr: "rate limit exceeded"},
			want: ccw.StatusError,
		},
		{
			name: "nonzero with empty stdout",
			res:  Result{ExitCode: 2, Stderr: "boom"},
			want: ccw.StatusError,
		},
		{
			name: "authentication failure",
			res:  Result{ExitCode: 1, Stdout: "some output", Stderr: "Authentication failed for account"},
			want: ccw.StatusError,
		},
		{
			name: "missing API key",
			res:  Result{ExitCode: 1, Stdout: "x", Stderr: "no API key configured"},
			want: ccw.StatusError,
		},
		{
			name: "FATAL marker",
			res:  Result{ExitCode: 1, Stdout: "x", Stderr: "FATAL: cannot continue"},
			want: ccw.StatusError,
		},
		{
			name:    "tool-specific markers replace global list",
			res:     Result{ExitCode: 1, Stdout: "x", Stderr: "rate limit exceeded"},
			markers: []string{"CUSTOM_FATAL"},
			want:    ccw.StatusSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineStatus(&tt.res, tt.markers); got != tt.want {
				t.Errorf("DetermineStatus = %s, want %s", got, tt.want)
			}
		})
	}
}
