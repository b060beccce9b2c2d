package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tuckwoor/garmin-analysis/internal/cli"
	"github.com/tuckwoor/garmin-analysis/internal/gather"
)

// Set via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Version = version

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, gather.ErrAuthEscalated) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
