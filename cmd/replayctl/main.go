// Command replayctl is an administrative front-end over a replay log:
// it drives record/play sessions with a synthetic collaborator for
// smoke-testing a log file, and inspects or seeks within an existing
// one without needing a real emulator attached.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmreplay/vmreplay/internal/logging"
)

var (
	verbose bool
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "replayctl",
	Short: "Inspect and drive deterministic replay logs",
	Long: `replayctl - deterministic replay log toolkit
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Operates on the record/replay log format: header, event stream, and
tail-appended snapshot index.

COMMANDS:
  record            record a synthetic instruction stream to a log
  play              play a log forward against a synthetic collaborator
  inspect           print the header and snapshot index of a log
  seek              load the nearest snapshot and replay to an exact step
  reverse-step      rewind execution by exactly one instruction step
  reverse-continue  rewind to the nearest breakpoint before a step

EXAMPLES:
  replayctl record --steps 1000 --period 5s session.replay
  replayctl inspect session.replay
  replayctl seek session.replay 150
  replayctl reverse-continue --breakpoint 40 session.replay 150`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		cfg := logging.DefaultConfig()
		if verbose {
			cfg.Level = logging.LevelDebug
		}
		logger = logging.NewLogger(cfg)
		logging.SetDefault(logger)
	})

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(reverseStepCmd)
	rootCmd.AddCommand(reverseContinueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "replayctl: %v\n", err)
		os.Exit(1)
	}
}
