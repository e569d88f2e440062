package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-dap/jlink/pkg/dapproto"
)

var (
	swoBaud     uint32
	swoDuration time.Duration
)

var swoCmd = &cobra.Command{
	Use:   "swo",
	Short: "Capture SWO trace output",
	Long: `Attach over SWD, enable the probe's SWO UART capture at the given baud
rate, capture trace bytes until the duration elapses, then write them to
stdout.

Examples:
  dapprobe swo --baud 115200 --duration 5s`,
	RunE: runSwo,
}

func init() {
	rootCmd.AddCommand(swoCmd)

	swoCmd.Flags().Uint32Var(&swoBaud, "baud", 115200, "SWO UART baud rate")
	swoCmd.Flags().DurationVar(&swoDuration, "duration", 5*time.Second, "capture duration")
}

func runSwo(cmd *cobra.Command, args []string) error {
	log := newLogger()

	p, err := openProbe(log)
	if err != nil {
		return err
	}
	defer p.Detach()

	if err := p.SelectProtocol(dapproto.Swd); err != nil {
		return err
	}
	if err := p.Attach(); err != nil {
		return err
	}

	swo := p.SWO()
	if err := swo.EnableSWO(dapproto.SwoConfig{Baud: swoBaud}); err != nil {
		return err
	}
	defer swo.DisableSWO()

	data, err := swo.ReadSWOTimeout(swoDuration)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\ncaptured %d bytes in %s\n", len(data), swoDuration)
	return nil
}
