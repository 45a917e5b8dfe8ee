package main

import (
	"os"

	"github.com/lowc1012/tiered-rate-limiter/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
