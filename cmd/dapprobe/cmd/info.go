package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-dap/jlink/internal/cmsisdap"
	"github.com/go-dap/jlink/pkg/probe"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the connected probe",
	Long: `Open the probe matching the selector flags and print its identity,
firmware, and protocol capabilities.

Examples:
  dapprobe info
  dapprobe info --vid 0x0d28 --serial 000440112138`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	log := newLogger()

	t, err := cmsisdap.Open(probe.Selector{VID: flagVID, PID: flagPID, Serial: flagSerial}, log)
	if err != nil {
		return err
	}
	defer t.Close()

	vid, pid := t.VIDPID()
	product, _ := t.ProductString()
	serial, _ := t.SerialString()
	firmware, _ := t.ReadFirmwareVersion()
	hardware, _ := t.ReadHardwareVersion()

	fmt.Printf("Probe:    %s (%04X:%04X)\n", product, vid, pid)
	fmt.Printf("Serial:   %s\n", serial)
	fmt.Printf("Firmware: %s\n", firmware)
	fmt.Printf("Hardware: %s\n", hardware)

	caps, err := t.ReadCapabilities()
	if err != nil {
		return err
	}
	fmt.Printf("SWD:      %v\n", caps.HasSWD)
	fmt.Printf("JTAG:     %v\n", caps.HasJTAG)
	fmt.Printf("SWO:      %v\n", caps.HasSWO)

	if mv, err := t.ReadTargetVoltageMillivolts(); err == nil {
		fmt.Printf("VTref:    %d mV\n", mv)
	}

	return nil
}
