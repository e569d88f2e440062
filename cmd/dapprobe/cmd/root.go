package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-dap/jlink/internal/cmsisdap"
	"github.com/go-dap/jlink/pkg/probe"
)

var (
	// Global flags
	verbose    bool
	flagVID    uint16
	flagPID    uint16
	flagSerial string
)

var rootCmd = &cobra.Command{
	Use:   "dapprobe",
	Short: "SWD/JTAG debug probe driver utility",
	Long: `Exercise a CMSIS-DAP debug probe: query its identity and capabilities,
attach over SWD or JTAG, and capture SWO trace output.

Examples:
  dapprobe info                                  # Identify the connected probe
  dapprobe attach --protocol swd --speed 4000    # SWD attach and DPIDR read
  dapprobe swo --baud 115200 --duration 5s       # Capture SWO trace`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Uint16Var(&flagVID, "vid", 0, "USB vendor ID filter (0 matches any)")
	rootCmd.PersistentFlags().Uint16Var(&flagPID, "pid", 0, "USB product ID filter (0 matches any)")
	rootCmd.PersistentFlags().StringVar(&flagSerial, "serial", "", "probe serial number filter")
}

// newLogger builds the logger shared by every subcommand.
func newLogger() *logrus.Logger {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// openProbe resolves the selector flags to a live probe.
func openProbe(log *logrus.Logger) (*probe.Probe, error) {
	sel := probe.Selector{VID: flagVID, PID: flagPID, Serial: flagSerial}
	return probe.NewFromSelector(sel, func(s probe.Selector) (probe.ProbeTransport, error) {
		return cmsisdap.Open(s, log)
	}, log)
}
