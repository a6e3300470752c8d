package main

import (
	"os"

	"github.com/scriptstash/scriptstash/cmd/scriptstash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
