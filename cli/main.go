package main

import (
	"os"

	"github.com/bloomwatch/bloomwatch-stack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
