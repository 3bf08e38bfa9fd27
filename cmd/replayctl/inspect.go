package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	vmreplay "github.com/vmreplay/vmreplay"
	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/snapshot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the header and snapshot index of a log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		c := codec.New(f)
		idx, err := snapshot.Load(c)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}

		fmt.Printf("version: %d\n", vmreplay.ReplayVersion)
		fmt.Printf("snapshots: %d\n", idx.Len())
		for i := 0; i < idx.Len(); i++ {
			e := idx.At(i)
			fmt.Printf("  [%d] step=%d offset=%d\n", i, e.Step, e.Offset)
		}
		return nil
	},
}
