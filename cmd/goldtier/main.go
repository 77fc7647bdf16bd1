// Package main is the entry point for the goldtier CLI.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "goldtier:", err)
		os.Exit(1)
	}
}
