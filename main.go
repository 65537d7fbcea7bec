package main

import (
	"fmt"
	"os"

	"github.com/arctir/corral/cmd"
)

func main() {
	corralCmd := cmd.SetupCommands()
	if err := corralCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
