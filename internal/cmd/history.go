package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccw-dev/ccw/internal/ccw"
	"github.com/ccw-dev/ccw/internal/store"
)

var historyFlags struct {
	limit     int
	tool      string
	status    string
	category  string
	search    string
	recursive bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List conversation history, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.IntVar(&historyFlags.limit, "limit", 50, "maximum conversations to list")
	f.StringVar(&historyFlags.tool, "tool", "", "filter by tool")
	f.StringVar(&historyFlags.status, "status", "", "filter by latest status")
	f.StringVar(&historyFlags.category, "category", "", "filter by category")
	f.StringVar(&historyFlags.search, "search", "", "match against ids and prompts")
	f.BoolVar(&historyFlags.recursive, "recursive", false, "include child projects")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	factory, st, err := openStore()
	if err != nil {
		return err
	}
	defer factory.Close()

	filters := store.Filters{
		Limit:    historyFlags.limit,
		Tool:     historyFlags.tool,
		Status:   ccw.Status(historyFlags.status),
		Category: ccw.Category(historyFlags.category),
		Search:   historyFlags.search,
	}

	var sums []ccw.Summary
	if historyFlags.recursive {
		sums, err = factory.RecursiveHistory(cmd.Context(), st.BaseDir(), filters, store.DirLister{})
	} else {
		sums, err = st.History(filters)
	}
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(sums)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOOL\tTURNS\tSTATUS\tDURATION\tUPDATED\tPROMPT")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.Tool, s.TurnCount, s.LatestStatus,
			(time.Duration(s.TotalDurationMS) * time.Millisecond).String(),
			s.SortTime().Format("2006-01-02 15:04"),
			s.FirstPrompt)
	}
	return w.Flush()
}
