package main

import (
	"os"

	"github.com/samargunners/par-delta-dashboard/cmd/ragctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
