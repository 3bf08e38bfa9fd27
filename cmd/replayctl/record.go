package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	vmreplay "github.com/vmreplay/vmreplay"
)

var (
	recordSteps  int
	recordPeriod time.Duration
	recordSuffix string
	recordICount int
)

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record a synthetic instruction stream to a log",
	Long: `record drives a Session in RECORD mode against a synthetic
collaborator, stepping --steps guest instructions and letting the
auto-snapshot timer run on --period. Useful for producing a log to
exercise inspect/seek/reverse-* against, or for smoke-testing a build.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg := vmreplay.DefaultConfig(path)
		if recordSuffix != "" {
			cfg.Suffix = recordSuffix
		}
		cfg.ICount = recordICount
		cfg.Period = recordPeriod

		collab := vmreplay.NewMockCollaborator()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess, err := vmreplay.Configure(cfg, vmreplay.ModeRecord, collab, &vmreplay.Options{Context: ctx})
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		sess.InitTimer()

		for i := 0; i < recordSteps; i++ {
			if _, err := sess.Controller().Instruction(false); err != nil {
				sess.Finish()
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		}

		if err := sess.Finish(); err != nil {
			return fmt.Errorf("finish: %w", err)
		}

		snap := sess.MetricsSnapshot()
		fmt.Printf("recorded %d instructions, %d snapshot(s), to %s\n",
			snap.InstructionsRecorded, sess.Index().Len(), path)
		return nil
	},
}

func init() {
	recordCmd.Flags().IntVar(&recordSteps, "steps", 1000, "number of instructions to record")
	recordCmd.Flags().DurationVar(&recordPeriod, "period", 0, "auto-snapshot interval (0 = startup snapshot only)")
	recordCmd.Flags().StringVar(&recordSuffix, "suffix", "", "disk image suffix (default replay_qcow)")
	recordCmd.Flags().IntVar(&recordICount, "icount", 0, "icount clock left-shift (0 disables icount)")
}
