// Package cmd provides the CLI commands for ccw.
package cmd

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccw-dev/ccw/internal/store"
	"github.com/ccw-dev/ccw/internal/tools"
	"github.com/ccw-dev/ccw/internal/version"
)

// global flags
var (
	verbose    bool
	outputJSON bool
	baseDir    string
)

// rootCmd is the root command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "ccw",
	Short: "Execute CLI AI tools with persistent, resumable conversations",
	Long: `ccw runs CLI AI tools (claude, codex, gemini, qwen) and records every
execution as a turn in a persistent conversation. Conversations can be
resumed natively through the tool's own session mechanism or by
embedding prior turns in the prompt; several conversations can be
merged into one.

Commands:
  run       Execute a tool with a prompt
  history   List conversation history
  show      Show one conversation
  delete    Delete conversations
  follow    Stream a conversation's native session file
  tools     List known tools

Examples:
  ccw run claude "explain this panic"
  ccw run claude --resume true "and how do I fix it?"
  ccw run claude --resume id1,id2 --id merged "combine these threads"
  ccw history --tool claude --search panic`,
	Version:      version.Get(),
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&baseDir, "cd", "", "project directory (default: current directory)")
}

// engineLogger returns the logger engine components use for non-fatal
// events; quiet unless --verbose is set.
func engineLogger() *log.Logger {
	w := io.Discard
	if verbose {
		w = os.Stderr
	}
	return log.New(w, "ccw: ", log.LstdFlags)
}

// loadRegistry returns the tool registry with the user's TOML overlay
// applied.
func loadRegistry() (*tools.Registry, error) {
	reg := tools.Builtin()
	if path := tools.DefaultConfigPath(); path != "" {
		if err := reg.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// projectDir resolves the --cd flag, defaulting to the current
// directory.
func projectDir() (string, error) {
	if baseDir != "" {
		return filepath.Abs(baseDir)
	}
	return os.Getwd()
}

// openStore opens the project's conversation store through a factory
// the caller must close.
func openStore() (*store.Factory, *store.Store, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, nil, err
	}
	f := store.NewFactory()
	st, err := f.ForProject(dir)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, st, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
