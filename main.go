package main

import (
	"os"

	"github.com/buildtall-systems/orderflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
