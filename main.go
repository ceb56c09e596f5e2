package main

import (
	"os"

	"github.com/viklund/heatopt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
