package main

import (
	"os"

	"github.com/ordinal-labs/plsqlcat/cmd/plsqlcat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
