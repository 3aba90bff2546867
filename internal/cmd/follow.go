package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccw-dev/ccw/internal/follow"
)

var followCmd = &cobra.Command{
	Use:   "follow <conversation-id>",
	Short: "Stream a conversation's native session file live",
	Args:  cobra.ExactArgs(1),
	RunE:  runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	factory, st, err := openStore()
	if err != nil {
		return err
	}
	defer factory.Close()

	m, err := st.GetNativeSessionMapping(args[0])
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("conversation %s has no native session link", args[0])
	}

	entries, err := follow.Stream(cmd.Context(), m.NativeSessionPath)
	if err != nil {
		return fmt.Errorf("follow %s: %w", m.NativeSessionPath, err)
	}

	fmt.Printf("following %s (%s)\n", m.NativeSessionID, m.NativeSessionPath)
	for e := range entries {
		if outputJSON {
			printJSON(e)
			continue
		}
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format(time.Kitchen), e.Role, e.Text)
	}
	return nil
}
