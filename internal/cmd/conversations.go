package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show one conversation with all its turns",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>...",
	Short: "Delete conversations and their native session links",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	factory, st, err := openStore()
	if err != nil {
		return err
	}
	defer factory.Close()

	rec, err := st.Get(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("conversation %s not found", args[0])
	}

	if outputJSON {
		return printJSON(rec)
	}

	fmt.Printf("%s  tool=%s mode=%s category=%s turns=%d total=%s\n",
		rec.ID, rec.Tool, rec.Mode, rec.Category, rec.TurnCount,
		(time.Duration(rec.TotalDurationMS) * time.Millisecond).String())
	if m, err := st.GetNativeSessionMapping(rec.ID); err == nil && m != nil {
		fmt.Printf("native session: %s (%s)\n", m.NativeSessionID, m.NativeSessionPath)
	}
	for _, t := range rec.Turns {
		fmt.Printf("\n--- turn %d  %s  %s  %dms", t.Turn,
			t.Timestamp.Format(time.RFC3339), t.Status, t.DurationMS)
		if t.SourceID != "" {
			fmt.Printf("  from=%s", t.SourceID)
		}
		fmt.Println()
		fmt.Printf("prompt: %s\n", t.Prompt)
		fmt.Printf("response: %s\n", t.Output.Response())
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	factory, st, err := openStore()
	if err != nil {
		return err
	}
	defer factory.Close()

	res := st.BatchDelete(args)
	if outputJSON {
		return printJSON(res)
	}
	fmt.Printf("deleted %d of %d\n", res.Deleted, res.Total)
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d deletions failed", len(res.Errors))
	}
	return nil
}
