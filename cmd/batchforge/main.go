package main

import (
	"os"

	"github.com/batchforge/batchforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
