package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	vmreplay "github.com/vmreplay/vmreplay"
)

var reverseStepCmd = &cobra.Command{
	Use:   "reverse-step <file> <step>",
	Short: "Rewind execution by exactly one instruction step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid step %q: %w", args[1], err)
		}

		collab := vmreplay.NewMockCollaborator()
		sess, err := vmreplay.Configure(vmreplay.DefaultConfig(args[0]), vmreplay.ModePlay, collab, nil)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		defer sess.Finish()

		if err := sess.Driver().ReverseStep(current); err != nil {
			return fmt.Errorf("reverse-step: %w", err)
		}

		fmt.Printf("rewound to step %d\n", collab.Step())
		return nil
	},
}

var reverseBreakpoints []uint64

var reverseContinueCmd = &cobra.Command{
	Use:   "reverse-continue <file> <step>",
	Short: "Rewind to the nearest breakpoint before a step",
	Long: `reverse-continue scans backward from <step> for the nearest
--breakpoint using the two-pass snapshot scan: each candidate snapshot
is replayed forward once to find the last breakpoint hit before the
starting step, then replayed a second time stopping exactly there.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s0, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid step %q: %w", args[1], err)
		}

		collab := vmreplay.NewMockCollaborator(reverseBreakpoints...)
		sess, err := vmreplay.Configure(vmreplay.DefaultConfig(args[0]), vmreplay.ModePlay, collab, nil)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		defer sess.Finish()

		if err := sess.Driver().ReverseContinue(s0); err != nil {
			return fmt.Errorf("reverse-continue: %w", err)
		}

		fmt.Printf("stopped at step %d\n", collab.Step())
		return nil
	},
}

func init() {
	reverseContinueCmd.Flags().Uint64SliceVar(&reverseBreakpoints, "breakpoint", nil, "breakpoint step (repeatable)")
}
