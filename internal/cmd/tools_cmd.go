package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List known tools and their capabilities",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	names := reg.Names()
	sort.Strings(names)

	if outputJSON {
		out := make([]any, 0, len(names))
		for _, n := range names {
			d, _ := reg.Get(n)
			out = append(out, d)
		}
		return printJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCOMMAND\tPROMPT\tNATIVE RESUME\tSESSIONS")
	for _, n := range names {
		d, _ := reg.Get(n)
		promptVia := "arg"
		if d.PromptViaStdin {
			promptVia = "stdin"
		}
		native := "no"
		if d.NativeResume.Supported {
			native = d.NativeResume.ResumeFlag
		}
		sessions := d.SessionDir
		if sessions == "" {
			sessions = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n, d.Command, promptVia, native, sessions)
	}
	return w.Flush()
}
