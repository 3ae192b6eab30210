// Package main is the entry point for the Hibiscus engine.
package main

import (
	"fmt"
	"os"

	"github.com/hibiscusapp/hibiscus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
