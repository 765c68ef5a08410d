// Command gbaheadless drives the console core without a display, for
// batch runs, conformance ROMs, and framebuffer-checksum regression
// testing. It is this module's analogue of the teacher's cmd/cpurunner.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gbaheadless",
		Short: "Run the handheld console core headlessly",
	}
	root.AddCommand(newRunCmd())
	return root
}
