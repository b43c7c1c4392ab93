package main

import (
	"fmt"
	"os"

	"loyalgate/cmd/loyalctl/cmd"
	"loyalgate/internal/platform/config"
)

func main() {
	if err := cmd.NewRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
