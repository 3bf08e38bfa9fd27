package main

import (
	"fmt"

	"github.com/spf13/cobra"

	vmreplay "github.com/vmreplay/vmreplay"
)

var playSteps int

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a log forward against a synthetic collaborator",
	Long: `play opens a Session in PLAY mode and steps the log forward,
up to --steps instructions or until the log is exhausted, printing the
number of instructions played and the final step reached.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		collab := vmreplay.NewMockCollaborator()

		sess, err := vmreplay.Configure(vmreplay.DefaultConfig(path), vmreplay.ModePlay, collab, nil)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		defer sess.Finish()

		executed := 0
		for i := 0; i < playSteps; i++ {
			ran, err := sess.Controller().Instruction(true)
			if err != nil {
				if vmreplay.IsKind(err, vmreplay.KindUnexpectedKind) {
					break // ran off the end of the recorded event stream
				}
				return fmt.Errorf("instruction: %w", err)
			}
			if ran {
				executed++
			}
		}

		fmt.Printf("played %d instructions, reached step %d\n", executed, sess.Controller().Step())
		return sess.Finish()
	},
}

func init() {
	playCmd.Flags().IntVar(&playSteps, "steps", 1000, "maximum instructions to play")
}
