package main

import (
	"os"

	"github.com/tradefolio/platform/cmd/tradefolio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
