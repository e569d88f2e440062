package main

import "github.com/go-dap/jlink/cmd/dapprobe/cmd"

func main() {
	cmd.Execute()
}
