// Command ccw executes CLI AI tools with persistent, resumable
// conversation history.
package main

import (
	"fmt"
	"os"

	"github.com/ccw-dev/ccw/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
