package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-dap/jlink/pkg/dapproto"
)

var (
	attachProtocol string
	attachSpeedKHz uint32
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to the target over SWD or JTAG",
	Long: `Select a wire protocol, bring the target's debug port up, and leave it
in a known state. Over SWD this performs the JTAG-to-SWD switch, a line
reset, and a DPIDR read; over JTAG it resets the TAP and reads IDCODE.

Examples:
  dapprobe attach --protocol swd --speed 4000
  dapprobe attach --protocol jtag`,
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().StringVar(&attachProtocol, "protocol", "swd", "wire protocol: swd or jtag")
	attachCmd.Flags().Uint32Var(&attachSpeedKHz, "speed", 1000, "clock speed in kHz")
}

func runAttach(cmd *cobra.Command, args []string) error {
	log := newLogger()

	var proto dapproto.WireProtocol
	switch attachProtocol {
	case "swd":
		proto = dapproto.Swd
	case "jtag":
		proto = dapproto.Jtag
	default:
		return fmt.Errorf("unknown protocol %q (want swd or jtag)", attachProtocol)
	}

	p, err := openProbe(log)
	if err != nil {
		return err
	}
	defer p.Detach()

	if err := p.SelectProtocol(proto); err != nil {
		return err
	}
	if err := p.SetSpeed(attachSpeedKHz); err != nil {
		return err
	}
	if err := p.Attach(); err != nil {
		return err
	}

	fmt.Printf("Attached over %s at %d kHz\n", proto, p.Speed())
	return nil
}
