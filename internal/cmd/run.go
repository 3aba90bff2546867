package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ccw-dev/ccw/internal/ccw"
	"github.com/ccw-dev/ccw/internal/discovery"
	"github.com/ccw-dev/ccw/internal/executor"
	"github.com/ccw-dev/ccw/internal/prompt"
	"github.com/ccw-dev/ccw/internal/runner"
	"github.com/ccw-dev/ccw/internal/store"
)

var runFlags struct {
	mode        string
	model       string
	includeDirs []string
	timeout     time.Duration
	resume      string
	id          string
	noNative    bool
	category    string
	parent      string
	format      string
	cacheOutput bool
	stream      bool
}

var runCmd = &cobra.Command{
	Use:   "run <tool> <prompt>",
	Short: "Execute a CLI AI tool and record the turn",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.mode, "mode", "analysis", "execution mode: analysis, write, auto")
	f.StringVar(&runFlags.model, "model", "", "model to request from the tool")
	f.StringArrayVar(&runFlags.includeDirs, "include-dir", nil, "extra directories the tool may access")
	f.DurationVar(&runFlags.timeout, "timeout", 10*time.Minute, "execution timeout (0 disables)")
	f.StringVar(&runFlags.resume, "resume", "", `resume: "true" (latest), an id, or a comma-separated id list`)
	f.StringVar(&runFlags.id, "id", "", "custom conversation id")
	f.BoolVar(&runFlags.noNative, "no-native", false, "force prompt concatenation over native resume")
	f.StringVar(&runFlags.category, "category", "user", "conversation category: user, internal, insight")
	f.StringVar(&runFlags.parent, "parent-execution-id", "", "execution id that spawned this one")
	f.StringVar(&runFlags.format, "format", "plain", "prior-turn serialization: plain, yaml, json")
	f.BoolVar(&runFlags.cacheOutput, "cache-output", true, "retain full output on the stored turn")
	f.BoolVar(&runFlags.stream, "stream", term.IsTerminal(int(os.Stdout.Fd())), "stream tool output live")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	factory := store.NewFactory()
	defer factory.Close()

	registry := executor.NewRegistry()
	r := &runner.Runner{
		Factory:  factory,
		Registry: reg,
		Executor: executor.New(registry),
		Tracker:  discovery.NewTracker(reg),
		Logger:   engineLogger(),
	}

	// Host SIGINT/SIGTERM cancels every running execution, idempotently.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			registry.CancelAll()
		}
	}()

	var onOutput executor.OutputFunc
	if runFlags.stream {
		onOutput = func(kind executor.StreamKind, chunk []byte) {
			if kind == executor.StreamStderr {
				os.Stderr.Write(chunk)
				return
			}
			os.Stdout.Write(chunk)
		}
	}

	out, err := r.ExecuteCliTool(cmd.Context(), runner.Params{
		Tool:              args[0],
		Prompt:            args[1],
		Mode:              ccw.Mode(runFlags.mode),
		Model:             runFlags.model,
		CD:                baseDir,
		IncludeDirs:       runFlags.includeDirs,
		Timeout:           runFlags.timeout,
		Resume:            runFlags.resume,
		ID:                runFlags.id,
		NoNative:          runFlags.noNative,
		Category:          ccw.Category(runFlags.category),
		ParentExecutionID: runFlags.parent,
		Format:            prompt.Format(runFlags.format),
		CacheOutput:       runFlags.cacheOutput,
		OnOutput:          onOutput,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(map[string]any{
			"success":      out.Success,
			"execution_id": out.ExecutionID,
			"execution":    out.Execution,
			"conversation": out.Conversation,
			"stdout":       out.Stdout,
			"stderr":       out.Stderr,
		})
	}

	if !runFlags.stream {
		fmt.Print(out.Stdout)
		if out.Stderr != "" {
			fmt.Fprint(os.Stderr, out.Stderr)
		}
	}
	if out.Conversation != nil {
		fmt.Fprintf(os.Stderr, "\n[%s] conversation %s turn %d (%s, %dms)\n",
			out.Execution.Status, out.Conversation.ID, out.Execution.Turn,
			args[0], out.Execution.DurationMS)
	}
	if !out.Success {
		// os.Exit skips the deferred close.
		factory.Close()
		os.Exit(1)
	}
	return nil
}
