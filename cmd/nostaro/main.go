package main

import (
	"fmt"
	"os"

	"github.com/kojira/nostaro/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	baseDir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	env := &appEnv{baseDir: baseDir, in: os.Stdin, out: os.Stdout}
	if err := newCLIApp(env).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
